package main

import "courier/cmd/courierctl/cli"

func main() {
	cli.Execute()
}
