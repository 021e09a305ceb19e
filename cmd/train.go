package cmd

import (
	"context"

	"github.com/inovacc/labelr/internal/reconcile"
	"github.com/spf13/cobra"
)

var trainUser string

var trainCmd = &cobra.Command{
	Use:   "train <owner/repo>",
	Short: "Train a classifier from a repository's labeled issues",
	Long: `Associate the repository's classifier with a user and, unless a model is
already trained or a training is in flight, run a training.

Repository reads use the configured personal access token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return schedule(cmd, func(ctx context.Context, r *reconcile.Reconciler) (reconcile.Result, error) {
			return r.DecideTraining(ctx, args[0], trainUser, "")
		})
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVarP(&trainUser, "user", "u", "", "GitHub login the model is associated with")
	_ = trainCmd.MarkFlagRequired("user")
}
