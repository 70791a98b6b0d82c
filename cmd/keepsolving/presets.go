package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/KeepSolving/internal/config"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the difficulty presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTEDAX\tBENCHES\tSPAWN\tROUND\tTIMEOUT\tREWARD\tAUTO")
			for _, name := range config.PresetNames() {
				c, err := config.Preset(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%ds\t%ds\t%d\t%.0f%%\n",
					name, c.WorkerCount, c.BenchCount, c.SpawnInterval(),
					c.RoundDurationSec, c.ModuleTimeoutSec, c.CurrencyPerModule, c.AutoSuccessChance*100)
			}
			return w.Flush()
		},
	}
}
