package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"courier/internal/domain"
)

// send <conversation-id> <message>: encrypt for every participant and send.
func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <conversation-id> <message...>",
		Short: "Encrypt and send a message to a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := bootstrap(ctx); err != nil {
				return err
			}

			m, err := client.Session.Send(ctx, domain.ConversationID(args[0]), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			ok("Sent %s to %d recipient(s)", m.ID, len(m.Recipients))
			return nil
		},
	}
	return cmd
}
