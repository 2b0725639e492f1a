package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

func conversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations you can access",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Online(); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			convs, err := client.Session.Conversations(ctx)
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				info("No conversations yet, start one with %s", color.YellowString("courier direct <user>"))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tWITH\tRETENTION\tLAST MESSAGE")
			for _, c := range convs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Type, peerLabel(c), c.RetentionPolicy, lastActivity(c))
			}
			return w.Flush()
		},
	}
}

func directCmd() *cobra.Command {
	var retention string
	cmd := &cobra.Command{
		Use:   "direct <user>",
		Short: "Open the direct conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Online(); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			c, err := client.Session.CreateDirect(ctx, domain.UserID(args[0]), domain.RetentionPolicy(retention))
			if err != nil {
				return err
			}
			printConversation(c)
			return nil
		},
	}
	cmd.Flags().StringVar(&retention, "retention", "", "retention policy: 7d or 30d (default 7d)")
	return cmd
}

func teamCmd() *cobra.Command {
	var retention string
	cmd := &cobra.Command{
		Use:   "team <team-id>",
		Short: "Open a conversation for a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Online(); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			c, err := client.Session.CreateTeam(ctx, domain.TeamID(args[0]), domain.RetentionPolicy(retention))
			if err != nil {
				return err
			}
			printConversation(c)
			return nil
		},
	}
	cmd.Flags().StringVar(&retention, "retention", "", "retention policy: 7d or 30d (default 7d)")
	return cmd
}

func retentionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retention <conversation-id> <7d|30d>",
		Short: "Change the retention policy for future messages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Online(); err != nil {
				return err
			}
			policy := domain.RetentionPolicy(args[1])
			if !policy.Valid() {
				return fmt.Errorf("unknown retention policy %q, use 7d or 30d", args[1])
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			c, err := client.Session.UpdateRetention(ctx, domain.ConversationID(args[0]), policy)
			if err != nil {
				return err
			}
			ok("Retention of %s is now %s", c.ID, color.YellowString(string(c.RetentionPolicy)))
			return nil
		},
	}
}

func printConversation(c domain.Conversation) {
	ok("Conversation %s", color.YellowString(c.ID.String()))
	info("Type: %s, with: %s", c.Type, peerLabel(c))
	info("Retention: %s", c.RetentionPolicy)
}

// peerLabel names the other side of a conversation for display.
func peerLabel(c domain.Conversation) string {
	if c.Type == types.ConversationTeam {
		return "team " + c.TeamID.String()
	}
	var others []string
	me := client.Config().UserID
	for _, p := range c.Participants {
		if p != me {
			others = append(others, p.String())
		}
	}
	return strings.Join(others, ", ")
}

func lastActivity(c domain.Conversation) string {
	if c.LastMessageAt == nil {
		return "-"
	}
	return c.LastMessageAt.Local().Format(time.DateTime)
}
