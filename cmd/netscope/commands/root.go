package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/netscope-io/netscope/pkg/version"
)

var (
	cfgFile     string
	storePath   string
	rulesFile   string
	maxHops     int
	concurrency int
	otelURL     string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "netscope",
	Short: "Network configuration blast-radius analyzer",
	Long: `netscope - temporal configuration graph and impact analysis

Ingest. Diff. Trace the blast radius.`,
	Version: version.Current,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.netscope.yaml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", ".netscope/store", "temporal store directory")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "YAML severity rule file")
	rootCmd.PersistentFlags().IntVar(&maxHops, "max-hops", 2, "cascade expansion bound")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 4, "ingestion workers")
	rootCmd.PersistentFlags().StringVar(&otelURL, "otel-endpoint", "", "OTLP trace endpoint")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})

	rootCmd.AddCommand(IngestCmd)
	rootCmd.AddCommand(AnalyzeCmd)
	rootCmd.AddCommand(ExportCmd)
	rootCmd.AddCommand(HistoryCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.SetConfigFile(filepath.Join(home, ".netscope.yaml"))
			viper.SetConfigType("yaml")
		}
	}
	viper.SetEnvPrefix("NETSCOPE")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	if viper.IsSet("store") && !rootCmd.PersistentFlags().Changed("store") {
		storePath = viper.GetString("store")
	}
	if viper.IsSet("rules") && !rootCmd.PersistentFlags().Changed("rules") {
		rulesFile = viper.GetString("rules")
	}
}

func renderHelp(cmd *cobra.Command) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00B3FF")).
		MarginBottom(1)

	flagStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	fmt.Println(titleStyle.Render(fmt.Sprintf("NETSCOPE %s", version.Current)))
	fmt.Println(cmd.Short)

	fmt.Println(titleStyle.Render("USAGE"))
	fmt.Printf("  %s\n\n", cmd.UseLine())

	if len(cmd.Commands()) > 0 {
		fmt.Println(titleStyle.Render("COMMANDS"))
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
			}
		}
		fmt.Println("")
	}

	fmt.Println(titleStyle.Render("FLAGS"))
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		output := fmt.Sprintf("  --%-15s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Println(flagStyle.Render(output))
	})
	fmt.Println("")
}
