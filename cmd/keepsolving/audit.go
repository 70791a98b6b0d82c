package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/KeepSolving/internal/infra/storage"
)

func newAuditCmd() *cobra.Command {
	var (
		dbPath  string
		roundID string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recorded rounds, or the tally and recap of one round",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.InitSQLite(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open audit database: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if roundID == "" {
				recent, err := storage.NewSQLiteRoundRepository(db).Recent(ctx, limit)
				if err != nil {
					return fmt.Errorf("failed to list rounds: %w", err)
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ROUND\tDIFFICULTY\tSCORE\tCURRENCY\tGENERATED\tPENDING\tREASON\tENDED")
				for _, r := range recent {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n", r.RoundID, r.Difficulty, r.Score,
						r.Currency, r.Generated, r.Pending, r.Reason, r.EndedAt.Local().Format(time.DateTime))
				}
				return w.Flush()
			}

			rec := storage.NewReconstructor(storage.NewSQLiteEventRepository(db))
			tally, err := rec.RebuildTally(ctx, roundID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "round %s: %d events, %d generated, %d defused, %d failed, %d exploded, %d expired, %d refused\n",
				tally.RoundID, tally.Events, tally.Generated, tally.Defused, tally.Failed,
				tally.Exploded, tally.Expired, tally.Refused)

			recap, err := rec.GenerateRecap(ctx, roundID)
			if err != nil {
				return err
			}
			for _, line := range recap {
				fmt.Fprintf(out, "[%s] %-8s %s\n", line.Timestamp, line.Impact, line.Summary)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "keepsolving.db", "SQLite audit file")
	cmd.Flags().StringVar(&roundID, "round", "", "round to reconstruct")
	cmd.Flags().IntVar(&limit, "limit", 10, "how many recent rounds to list")
	return cmd
}
