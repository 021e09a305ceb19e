package cmd

import (
	"context"

	"github.com/inovacc/labelr/internal/reconcile"
	"github.com/spf13/cobra"
)

var (
	classifyModel string
	classifyUser  string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <owner/repo>",
	Short: "Label a repository's issues with a trained classifier",
	Long: `Copy the model repository's labels to the target and label every issue
whose prediction is confident enough. The app must be installed on the target.

Nothing is scheduled when the target was already classified with the same
model, or a classification is still within its timeout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return schedule(cmd, func(ctx context.Context, r *reconcile.Reconciler) (reconcile.Result, error) {
			return r.DecideClassification(ctx, args[0], classifyModel, classifyUser, "")
		})
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVarP(&classifyModel, "model", "m", "", "Model repository (owner/repo)")
	classifyCmd.Flags().StringVarP(&classifyUser, "user", "u", "cli", "Login recorded on the classification")
	_ = classifyCmd.MarkFlagRequired("model")
}
