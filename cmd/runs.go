package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	runsLimit int
	runsJSON  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent training and classification runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Output as JSON")
}

func runRuns(cmd *cobra.Command, _ []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	runs, err := db.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}

	if runsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ID\tKIND\tREPO\tMODEL\tSTATUS\tQUEUED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t-----\t------\t------\t--------\t-----")

	for _, r := range runs {
		duration := "-"
		if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		modelRepo := r.Model
		if modelRepo == "" {
			modelRepo = "-"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.Kind,
			r.Repo,
			modelRepo,
			r.Status,
			r.QueuedAt.Local().Format(time.DateTime),
			duration,
			r.Error,
		)
	}

	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}
