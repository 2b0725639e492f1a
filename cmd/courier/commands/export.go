package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"courier/internal/domain"
)

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Decrypt a conversation locally and write it to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := bootstrap(ctx); err != nil {
				return err
			}

			exp, err := client.Session.Export(ctx, domain.ConversationID(args[0]))
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(exp, "", "  ")
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				path = fmt.Sprintf("courier-export-%s.json", exp.Conversation.ID)
			}
			if err := os.WriteFile(path, b, 0o600); err != nil {
				return err
			}

			var failed int
			for _, m := range exp.Messages {
				if m.Err != nil {
					failed++
				}
			}
			ok("Exported %d message(s) to %s", len(exp.Messages), color.YellowString(path))
			if failed > 0 {
				fmt.Println(color.RedString("✗") + fmt.Sprintf(" %d message(s) could not be decrypted", failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default courier-export-<id>.json)")
	return cmd
}
