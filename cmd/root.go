// cmd/root.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/i18n"
	"github.com/xkilldash9x/quickeval/internal/observability"
)

type contextKey string

const (
	configKey  contextKey = "config"
	printerKey contextKey = "printer"
)

// NewRootCommand builds the command tree. Each call returns an independent
// tree so tests can run commands in isolation.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDeps())
}

func newRootCommand(deps portalDeps) *cobra.Command {
	var cfgFile, lang string

	rootCmd := &cobra.Command{
		Use:           "quickeval",
		Short:         "quickeval fills in the end-of-term teaching evaluations on the academic affairs portal.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "quickeval"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "quickeval"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			if lang != "" {
				cfg.SetLocale(lang)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting quickeval", zap.String("version", Version))

			printer, err := i18n.NewPrinter(cfg.Locale())
			if err != nil {
				return fmt.Errorf("invalid locale: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), configKey, config.Interface(cfg))
			ctx = context.WithValue(ctx, printerKey, printer)
			cmd.SetContext(ctx)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./quickeval.yaml or ~/.config/quickeval/quickeval.yaml)")
	rootCmd.PersistentFlags().StringVar(&lang, "lang", "", "language of console messages ("+strings.Join(i18n.Languages(), ", ")+")")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	// One buffered stdin for every prompt, so piped answers are not split
	// between readers.
	rootCmd.SetIn(bufio.NewReader(os.Stdin))

	rootCmd.AddCommand(newEvaluateCmd(deps))
	rootCmd.AddCommand(newListCmd(deps))
	rootCmd.AddCommand(newReportCmd(deps.journal))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with args, printing any failure.
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Debug("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file and environment into v.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "quickeval"))
		}
		v.SetConfigName("quickeval")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("QUICKEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// getConfigFromContext retrieves the configuration stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in context")
	}
	return cfg, nil
}

// getPrinterFromContext returns the localised printer, or an English one.
func getPrinterFromContext(ctx context.Context) *i18n.Printer {
	if p, ok := ctx.Value(printerKey).(*i18n.Printer); ok {
		return p
	}
	return i18n.FromContext(ctx)
}
