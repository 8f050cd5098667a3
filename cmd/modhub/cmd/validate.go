package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zebra-devops/MarketEdge-Platform-sub003/discovery"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/validator"
)

var errInvalidManifests = errors.New("one or more manifests are invalid")

// NewValidateCommand creates the validate command.
func NewValidateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate MANIFEST...",
		Short: "Check module manifests against the registration rules",
		Long: `Validate runs the same checks a registration goes through before dependency
resolution: required fields, formats, config schema, signature and source scan.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			v := validator.FromConfig(cfg.Validator, nil)
			out := cmd.OutOrStdout()

			failed := 0
			for _, path := range args {
				m, err := discovery.LoadManifest(path)
				if err != nil {
					fmt.Fprintf(out, "FAIL %s\n  %v\n", path, err)
					failed++
					continue
				}
				ok, res := v.Validate(cmd.Context(), m)
				status := "OK  "
				if !ok {
					status = "FAIL"
					failed++
				}
				fmt.Fprintf(out, "%s %s (%s %s)\n", status, path, m.ID, m.Version)
				for _, e := range res.Errors {
					fmt.Fprintf(out, "  error: %s\n", e)
				}
				for _, w := range res.Warnings {
					fmt.Fprintf(out, "  warning: %s\n", w)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errInvalidManifests, failed, len(args))
			}
			return nil
		},
	}
}
