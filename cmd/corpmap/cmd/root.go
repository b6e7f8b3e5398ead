// Package cmd implements the corpmap command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opencorpdata/corpmap"
	"github.com/opencorpdata/corpmap/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "corpmap",
	Short: "Link Korean company records across government data sources",
	Long: `Corpmap queries Korean government and financial-disclosure sources,
resolves the returned records into canonical company entities, and keeps a
local registry with staleness tracking and cross-source auditing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
}

// Execute runs the CLI with the given context and build information.
func Execute(ctx context.Context, version, commit, date string) error {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ~/.corpmap.yaml)")
	flags.String("descriptors", "sources.yaml", "source descriptor file")
	flags.String("db", "corpmap.db", "entity registry database path")
	flags.StringP("output", "o", "text", "output format (text|json)")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.Int("batch-size", 0, "max simultaneous source calls (0 = default)")
	flags.Duration("call-timeout", 0, "per-source-call timeout (0 = default)")

	for _, name := range []string{"config", "descriptors", "db", "output", "verbose", "batch-size", "call-timeout"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig loads configuration in order of precedence: flags, environment
// variables, .env files, config file, defaults.
func initConfig(cmd *cobra.Command) error {
	// .env files load before viper env binding so both see the values.
	_ = godotenv.Load()

	viper.SetEnvPrefix("CORPMAP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".corpmap")
	}
	// Missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()

	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := logging.NewConsole()
	logging.SetDefault(logger)
	cmd.SetContext(logging.WithLogger(cmd.Context(), &logger))
	return nil
}

// newClient builds a corpmap client from the resolved configuration.
func newClient() (corpmap.Client, error) {
	opts := []corpmap.Option{
		corpmap.WithDescriptorsFile(viper.GetString("descriptors")),
		corpmap.WithStorePath(viper.GetString("db")),
	}
	if n := viper.GetInt("batch-size"); n > 0 {
		opts = append(opts, corpmap.WithBatchSize(n))
	}
	if d := viper.GetDuration("call-timeout"); d > 0 {
		opts = append(opts, corpmap.WithCallTimeout(d))
	}
	return corpmap.New(opts...)
}

func outputJSON() bool {
	return viper.GetString("output") == "json"
}
