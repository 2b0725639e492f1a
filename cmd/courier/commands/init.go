package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"courier/internal/crypto"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate the device keypair and store it securely",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := passphrase()
			if err != nil {
				return err
			}
			kp, created, err := client.Identity.LoadOrCreateKeyPair(p, client.Config().DeviceID)
			if err != nil {
				return err
			}
			if created {
				ok("Device key created for %s", color.YellowString(kp.DeviceID.String()))
			} else {
				ok("Device key already exists for %s", color.YellowString(kp.DeviceID.String()))
			}
			info("Fingerprint: %s", crypto.Fingerprint(kp.Public))
			info("Run %s to publish it", color.YellowString("courier register"))
			return nil
		},
	}
}
