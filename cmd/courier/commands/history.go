package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"courier/internal/domain"
)

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Fetch and decrypt a conversation's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := bootstrap(ctx); err != nil {
				return err
			}

			msgs, err := client.Session.Join(ctx, domain.ConversationID(args[0]))
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				info("No messages")
			}
			for _, m := range msgs {
				printMessage(m)
			}
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		sender   string
		from, to string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "search <conversation-id>",
		Short: "Filter a conversation's history by sender and time range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := domain.MessageQuery{SenderID: domain.UserID(sender), Limit: limit}
			var err error
			if q.From, err = parseTime("from", from); err != nil {
				return err
			}
			if q.To, err = parseTime("to", to); err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := bootstrap(ctx); err != nil {
				return err
			}
			msgs, err := client.Session.Search(ctx, domain.ConversationID(args[0]), q)
			if err != nil {
				return err
			}
			info("%d message(s)", len(msgs))
			for _, m := range msgs {
				printMessage(m)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "only messages from this user")
	cmd.Flags().StringVar(&from, "from", "", "earliest creation time (RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "latest creation time (RFC 3339)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of messages")
	return cmd
}

func parseTime(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be an RFC 3339 time: %w", name, err)
	}
	return t, nil
}

func printMessage(m domain.DecryptedMessage) {
	stamp := color.HiBlackString(m.CreatedAt.Local().Format(time.DateTime))
	who := color.CyanString(m.SenderID.String())
	if m.Err != nil {
		fmt.Printf("%s %s %s\n", stamp, who, color.RedString("[cannot decrypt]"))
		return
	}
	fmt.Printf("%s %s %s\n", stamp, who, m.Plaintext)
}
