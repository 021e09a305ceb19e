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
	modelsUser string
	modelsJSON bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models associated with a user",
	Long: `List the classifier models a user has trained or been associated with,
and whether each one is ready.

Examples:
  labelr models --user octocat
  labelr models --user octocat --json`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

var modelShowCmd = &cobra.Command{
	Use:   "show <owner/repo>",
	Short: "Show the registry and ledger state of a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelShow,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelShowCmd)

	modelsCmd.Flags().StringVarP(&modelsUser, "user", "u", "", "GitHub login")
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
	_ = modelsCmd.MarkFlagRequired("user")
}

func runModels(cmd *cobra.Command, _ []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	models, err := db.ListTrainings(cmd.Context(), modelsUser)
	if err != nil {
		return err
	}

	if modelsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(models)
	}

	if len(models) == 0 {
		_, _ = fmt.Fprintf(os.Stdout, "No models for %s.\n", modelsUser)
		_, _ = fmt.Fprintln(os.Stdout, "\nTrain one with: labelr train <owner/repo> --user "+modelsUser)

		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "MODEL\tREADY")
	_, _ = fmt.Fprintln(w, "-----\t-----")

	for _, m := range models {
		_, _ = fmt.Fprintf(w, "%s\t%t\n", m.Name, m.Ready)
	}

	return w.Flush()
}

func runModelShow(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	repo := args[0]

	rec, err := db.GetModel(cmd.Context(), repo)
	if err != nil {
		return err
	}

	cls, err := db.GetClassification(cmd.Context(), repo)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Repository:\t%s\n", repo)

	if rec == nil {
		_, _ = fmt.Fprintln(w, "Model:\tnone")
	} else {
		_, _ = fmt.Fprintf(w, "Model ready:\t%t\n", rec.Ready)
		_, _ = fmt.Fprintf(w, "Model updated:\t%s\n", rec.UpdatedAt.Local().Format(time.DateTime))
	}

	if cls == nil {
		_, _ = fmt.Fprintln(w, "Classification:\tnone")
	} else {
		_, _ = fmt.Fprintf(w, "Classified with:\t%s\n", cls.Model)
		_, _ = fmt.Fprintf(w, "Classified:\t%t\n", cls.Classified)
		_, _ = fmt.Fprintf(w, "Started:\t%s\n", cls.StartedAt.Local().Format(time.DateTime))

		if cls.Classified {
			_, _ = fmt.Fprintf(w, "Completed:\t%s\n", cls.CompletedAt.Local().Format(time.DateTime))
		}
	}

	return w.Flush()
}
