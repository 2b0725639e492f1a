package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/relay"
)

// watch joins the given conversations and prints messages until interrupted.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <conversation-id>...",
		Short: "Join conversations and print messages as they arrive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := bootstrap(ctx); err != nil {
				return err
			}
			rt, err := client.ConnectRealtime(ctx, relay.Handlers{
				OnNewMessage: func(ev types.NewMessageEvent) {
					if m, added := client.Session.HandleNewMessage(ev); added {
						printMessage(m)
					}
				},
				OnNotice: func(ev types.MessageNoticeEvent) {
					info("New message from %s in %s", ev.SenderID, color.YellowString(ev.ConversationID.String()))
				},
				OnPresence: func(ev types.PresenceEvent) {
					client.Session.HandlePresence(ev)
					ids := make([]string, len(ev.OnlineUserIDs))
					for i, id := range ev.OnlineUserIDs {
						ids[i] = id.String()
					}
					info("Online: %s", strings.Join(ids, ", "))
				},
				OnJoined: func(ev types.JoinedEvent) {
					ok("Joined %s (%s, retention %s)", ev.ConversationID, ev.Type, ev.RetentionPolicy)
				},
				OnError: func(ev types.ErrorEvent) {
					fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+ev.Message)
				},
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			errc := make(chan error, 1)
			go func() { errc <- rt.Run(ctx) }()

			for _, arg := range args {
				msgs, err := client.Session.Join(ctx, domain.ConversationID(arg))
				if err != nil {
					return err
				}
				for _, m := range msgs {
					printMessage(m)
				}
			}
			info("Watching, press Ctrl-C to stop")
			return <-errc
		},
	}
}
