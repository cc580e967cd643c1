package cli

import (
	"fmt"

	"courier/cmd/courierctl/profile"

	"github.com/spf13/cobra"
)

func init() {
	tokenCmd.Flags().Bool("save", false, "store the token and user id in the profile")
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(tokenCmd, userCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token <userId>",
	Short: "Mint a credential token with the backend API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, path, err := settings(cmd)
		if err != nil {
			return err
		}
		if p.APIKey == "" {
			if p.APIKey, err = promptSecret("Backend API key"); err != nil {
				return err
			}
		}
		res, err := newClient(p).Sign(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Token)

		if save, _ := cmd.Flags().GetBool("save"); save {
			p.UserID, p.Token = res.UserID, res.Token
			if err := profile.Save(p, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "saved to %s (expires %s)\n", path, res.ExpiresAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Backend user provisioning",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <userId> <username>",
	Short: "Provision a user with the backend API key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := settings(cmd)
		if err != nil {
			return err
		}
		if p.APIKey == "" {
			if p.APIKey, err = promptSecret("Backend API key"); err != nil {
				return err
			}
		}
		u, err := newClient(p).CreateUser(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", u.ID, u.Username)
		return nil
	},
}
