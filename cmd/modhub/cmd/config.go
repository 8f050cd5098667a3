package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/feeders"
)

// loadConfig builds the configuration from defaults, the optional config
// file and MODHUB_* environment variables, in that order.
func loadConfig(path string) (*modular.Config, error) {
	var sources []modular.Feeder
	if path != "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			sources = append(sources, feeders.NewYamlFeeder(path))
		case ".toml":
			sources = append(sources, feeders.NewTomlFeeder(path))
		default:
			return nil, fmt.Errorf("%w: %s", modular.ErrUnsupportedFormatType, path)
		}
	}
	sources = append(sources, feeders.NewEnvFeeder(feeders.DefaultEnvPrefix))

	cfg := &modular.Config{}
	if err := modular.LoadConfig(cfg, sources...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns a slog text logger or, for the json format, a zap
// production logger. The returned func flushes buffered output.
func newLogger(cfg modular.LogConfig, out io.Writer) (modular.Logger, func(), error) {
	if cfg.Format == "json" {
		zcfg := zap.NewProductionConfig()
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		zcfg.Level = level
		zl, err := zcfg.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("build zap logger: %w", err)
		}
		l := modular.NewZapLogger(zl)
		return l, func() { _ = l.Sync() }, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), func() {}, nil
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and generate configuration",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.AddCommand(newConfigSampleCommand())
	cmd.AddCommand(newConfigDescribeCommand())
	return cmd
}

func newConfigSampleCommand() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a configuration file with every default filled in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "" {
				if err := modular.SaveSampleConfig(&modular.Config{}, format, output); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sample configuration written to %s\n", output)
				return nil
			}
			data, err := modular.GenerateSampleConfig(&modular.Config{}, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml, toml or json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newConfigDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "List configuration fields and what they do",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, line := range modular.DescribeConfig(&modular.Config{}) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
		},
	}
}
