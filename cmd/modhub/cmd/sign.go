package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zebra-devops/MarketEdge-Platform-sub003/discovery"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/validator"
)

var errNoSigningSecret = errors.New("no signing secret: pass --secret or set validator.signing_secret")

// NewSignCommand creates the sign command.
func NewSignCommand(configPath *string) *cobra.Command {
	var secret string
	var write bool

	cmd := &cobra.Command{
		Use:   "sign MANIFEST",
		Short: "Compute the HMAC signature of a module manifest",
		Long: `Sign prints the signature of the manifest's canonical form. With --write the
signature is stored in the manifest, re-encoded in its original format.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := loadConfig(*configPath)
				if err != nil {
					return err
				}
				secret = cfg.Validator.SigningSecret
			}
			if secret == "" {
				return errNoSigningSecret
			}

			path := args[0]
			m, err := discovery.LoadManifest(path)
			if err != nil {
				return err
			}
			sig, err := validator.NewSigner([]byte(secret)).Sign(m)
			if err != nil {
				return err
			}
			if !write {
				fmt.Fprintln(cmd.OutOrStdout(), sig)
				return nil
			}

			m.Signature = sig
			data, err := discovery.EncodeManifest(m, discovery.FormatOf(path))
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed %s (%s)\n", path, m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (defaults to validator.signing_secret)")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Store the signature in the manifest")
	return cmd
}
