package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"courier/pkg/models"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	profileCmd.Flags().String("username", "", "new username")
	profileCmd.Flags().String("picture", "", "new profile picture URL")
	rootCmd.AddCommand(historyCmd, contactsCmd, profileCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <userId>",
	Short: "Print the conversation with a user, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := settings(cmd)
		if err != nil {
			return err
		}
		if err := requireToken(p); err != nil {
			return err
		}
		entries, err := newClient(p).History(args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			printEntry(cmd.OutOrStdout(), e)
		}
		return nil
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List contacts with unread counts and presence",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := settings(cmd)
		if err != nil {
			return err
		}
		if err := requireToken(p); err != nil {
			return err
		}
		contacts, err := newClient(p).Contacts()
		if err != nil {
			return err
		}
		printContacts(cmd.OutOrStdout(), contacts)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update your profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := settings(cmd)
		if err != nil {
			return err
		}
		if err := requireToken(p); err != nil {
			return err
		}
		c := newClient(p)

		var upd models.ProfileUpdate
		if cmd.Flags().Changed("username") {
			v, _ := cmd.Flags().GetString("username")
			upd.Username = &v
		}
		if cmd.Flags().Changed("picture") {
			v, _ := cmd.Flags().GetString("picture")
			upd.ProfilePictureURL = &v
		}

		var u models.User
		if upd.Username != nil || upd.ProfilePictureURL != nil {
			u, err = c.UpdateProfile(upd)
		} else {
			u, err = c.Profile()
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:       %s\n", u.ID)
		fmt.Fprintf(out, "username: %s\n", u.Username)
		if u.ProfilePictureURL != "" {
			fmt.Fprintf(out, "picture:  %s\n", u.ProfilePictureURL)
		}
		fmt.Fprintf(out, "joined:   %s\n", humanize.Time(u.CreatedAt))
		return nil
	},
}

func printEntry(w io.Writer, e models.HistoryEntry) {
	body := e.Content
	switch {
	case e.IsDeleted:
		body = "(deleted)"
	case e.Type != models.TypeText:
		body = fmt.Sprintf("[%s] %s", e.Type, e.Content)
		if e.Caption != "" {
			body += " " + e.Caption
		}
	}
	prefix := ""
	if e.IsForwarded {
		prefix = "fwd "
	}
	if e.RepliedTo != nil {
		prefix += fmt.Sprintf("re:%s ", e.RepliedTo.Sender.Username)
	}
	name := e.Sender.Username
	if name == "" {
		name = e.SenderID
	}
	fmt.Fprintf(w, "%s %-12s %s%s  [%s]\n", e.CreatedAt.Local().Format("01-02 15:04"), name, prefix, body, e.Status)
}

func printContacts(w io.Writer, contacts []models.Contact) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tPRESENCE\tUNREAD\tLAST MESSAGE")
	for _, c := range contacts {
		presence := "online"
		if !c.Online {
			presence = "offline"
			if c.LastSeen != nil {
				presence = "seen " + humanize.Time(*c.LastSeen)
			}
		}
		last := "-"
		if c.LastMessage != nil {
			last = humanize.RelTime(c.LastMessage.CreatedAt, time.Now(), "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.Username, presence, c.UnreadCount, last)
	}
	_ = tw.Flush()
}
