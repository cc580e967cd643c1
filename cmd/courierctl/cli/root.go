package cli

import (
	"fmt"
	"os"
	"strings"

	"courier/cmd/courierctl/client"
	"courier/cmd/courierctl/profile"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "courierctl",
	Short: "courierctl talks to a courier messaging server",
	Long: `courierctl mints credential tokens, opens live chat sessions and
reads history, contacts and profiles from a courier server.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "profile path (default is $HOME/.courierctl.yaml)")
	pf.StringP("server", "s", "", "server base URL")
	pf.String("api-key", "", "backend API key")
	pf.String("token", "", "user credential token")
}

// settings resolves flags over COURIER_* env (.env included) over the profile.
func settings(cmd *cobra.Command) (*profile.Profile, string, error) {
	_ = godotenv.Load(".env")

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = profile.DefaultPath()
	}
	p, err := profile.Load(path)
	if err != nil {
		return nil, "", err
	}
	p.ApplyEnv()
	for flag, dst := range map[string]*string{"server": &p.Server, "api-key": &p.APIKey, "token": &p.Token} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			*dst = v
		}
	}
	return p, path, nil
}

func newClient(p *profile.Profile) *client.Client {
	return client.New(p.ServerURL(), p.APIKey, p.Token)
}

func requireToken(p *profile.Profile) error {
	if p.Token == "" {
		return fmt.Errorf("no token: pass --token, set COURIER_TOKEN, or run 'courierctl token <userId> --save'")
	}
	return nil
}

// promptSecret reads a value without echo when stdin is a terminal.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%s required", strings.ToLower(label))
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
