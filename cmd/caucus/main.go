package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/caucus-ai/caucus/internal/config"
)

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "caucus",
	Short: "Agent-team mission engine",
	Long: `Caucus runs missions through competing agent teams: a planner walks a
step graph, each step fans out into a staged team pipeline, critics gate
the outputs, and a sealed-bid auction routes specialist work.

Run 'caucus serve' to start the engine, then submit missions with
'caucus submit' or drive it interactively with 'caucus repl'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if viper.IsSet("socket") {
			loaded.Socket = viper.GetString("socket")
		}
		if viper.IsSet("db") {
			loaded.Database = viper.GetString("db")
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().String("socket", "", "Engine control socket path")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (empty: in-memory only)")
	viper.BindPFlag("socket", rootCmd.PersistentFlags().Lookup("socket"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.SetEnvPrefix("CAUCUS")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
