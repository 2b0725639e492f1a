package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"courier/internal/crypto"
)

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Publish your public key to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Online(); err != nil {
				return err
			}
			p, err := passphrase()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			kp, created, err := client.Session.Bootstrap(ctx, p)
			if err != nil {
				return err
			}
			if created {
				info("Generated a new device key")
			}
			ok("Registered %s for %s", color.YellowString(kp.DeviceID.String()), client.Config().UserID)
			info("Fingerprint: %s", crypto.Fingerprint(kp.Public))
			return nil
		},
	}
	return cmd
}
