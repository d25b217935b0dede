// Command dose-dispenser drives a medication carousel: it follows the dose
// schedule from the backend, alerts when a dose is due, and reports whether
// it was taken.
package main

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/dose-dispenser/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// app carries the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
}

func (a *app) load() (config.Config, error) {
	return config.Load(a.v, a.cfgFile)
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "dose-dispenser",
		Short:         "Medication dispenser controller.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./dose-dispenser.yaml or /etc/dose-dispenser/dose-dispenser.yaml)")
	flags.String("data-dir", "", "directory for the store and journal")
	flags.Bool("simulate", false, "use simulated hardware")
	a.v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	a.v.BindPFlag("simulate", flags.Lookup("simulate"))

	addRun(cmd, a)
	addPrintState(cmd, a)
	addMotion(cmd, a)
	addHistory(cmd, a)
	addWiFi(cmd, a)
	return cmd
}
