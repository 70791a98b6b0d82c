// Package main is the entry point for the KEEP SOLVING bomb panel.
// It only handles dependency injection and wiring.
// NO business logic belongs here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "keepsolving",
		Short:         "Headless bomb panel: generate modules, hand them to tedax, keep solving",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newPresetsCmd(), newAuditCmd(), newWatchCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "keepsolving:", err)
		os.Exit(1)
	}
}
