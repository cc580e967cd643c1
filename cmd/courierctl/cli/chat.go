package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"courier/cmd/courierctl/client"
	"courier/pkg/events"
	"courier/pkg/models"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <recipientId>",
	Short: "Open a live session and chat with a user",
	Long: `Opens a websocket session. Lines read from stdin are sent as text
messages. Commands:
  /seen              mark the recipient's messages as seen
  /typing, /stop     start or stop the typing indicator
  /delete <id>...    delete your messages everywhere
  /forward <id> <userId>...
  /quit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := settings(cmd)
		if err != nil {
			return err
		}
		if err := requireToken(p); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		chat, err := client.Dial(ctx, p.WebSocketURL(), p.Token, nil)
		if err != nil {
			return fmt.Errorf("connect %s: %w", p.WebSocketURL(), err)
		}
		defer chat.Close()

		out := cmd.OutOrStdout()
		readErr := make(chan error, 1)
		go func() {
			for {
				f, err := chat.Next()
				if err != nil {
					readErr <- err
					return
				}
				printEvent(out, f)
			}
		}()

		lines := make(chan string)
		go scanLines(cmd.InOrStdin(), lines)

		recipient := args[0]
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-readErr:
				if code, ok := client.IsClosed(err); ok {
					return fmt.Errorf("session closed by server (code %d)", code)
				}
				return err
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				quit, err := runLine(chat, recipient, line)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
				if quit {
					return nil
				}
			}
		}
	},
}

func scanLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out <- line
		}
	}
}

// runLine maps one input line onto an outbound event.
func runLine(chat *client.Chat, recipient, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, chat.Send(events.SendMessage, events.SendMessagePayload{RecipientID: recipient, Content: line})
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true, nil
	case "/seen":
		return false, chat.Send(events.MarkAsSeen, events.MarkAsSeenPayload{SenderID: recipient})
	case "/typing":
		return false, chat.Send(events.StartTyping, events.TypingPayload{RecipientID: recipient})
	case "/stop":
		return false, chat.Send(events.StopTyping, events.TypingPayload{RecipientID: recipient})
	case "/delete":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /delete <messageId>...")
		}
		return false, chat.Send(events.DeleteMessages, events.DeleteMessagesPayload{MessageIDs: fields[1:]})
	case "/forward":
		if len(fields) < 3 {
			return false, fmt.Errorf("usage: /forward <messageId> <userId>...")
		}
		return false, chat.Send(events.ForwardMessages, events.ForwardMessagesPayload{MessageIDs: fields[1:2], RecipientIDs: fields[2:]})
	}
	return false, fmt.Errorf("unknown command %s", fields[0])
}

func printEvent(w io.Writer, f events.Frame) {
	switch f.Event {
	case events.ReceiveMessage, events.MessageSent:
		var m models.Message
		if err := json.Unmarshal(f.Data, &m); err == nil {
			arrow := "<"
			if f.Event == events.MessageSent {
				arrow = ">"
			}
			fmt.Fprintf(w, "%s %s: %s  (%s, %s)\n", arrow, m.SenderID, m.Content, m.ID, m.Status)
			return
		}
	case events.MessageStatusUpdated:
		var u events.StatusUpdate
		if err := json.Unmarshal(f.Data, &u); err == nil {
			fmt.Fprintf(w, "* %s is %s\n", u.MessageID, u.Status)
			return
		}
	}
	fmt.Fprintf(w, "* %s %s\n", f.Event, string(f.Data))
}
