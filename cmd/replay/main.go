package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ManuelReschke/MeliDesk/internal/pkg/bootstrap"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/webhooks"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "replay",
		Short:         "Re-run the question pipeline for notifications the marketplace did not redeliver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.AddCommand(newQuestionCmd())
	return root
}

func newQuestionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "question",
		Short: "Process one marketplace question synchronously",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, _ := cmd.Flags().GetString("account")
			questionID, _ := cmd.Flags().GetString("question")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			services := bootstrap.Setup()
			account, err := services.Repositories.Account.GetByID(ctx, accountID)
			if err != nil {
				return fmt.Errorf("load account %s: %w", accountID, err)
			}

			event := webhooks.WebhookEvent{
				Topic:    webhooks.TopicQuestions,
				Resource: "/questions/" + questionID,
				UserID:   webhooks.FlexibleID(account.MLUserID),
			}
			outcome, err := services.Processor.ProcessQuestionWebhook(ctx, event, account)
			fmt.Fprintf(cmd.OutOrStdout(), "question %s: %s\n", questionID, outcome)
			return err
		},
	}
	cmd.Flags().String("account", "", "account id")
	cmd.Flags().String("question", "", "marketplace question id")
	cmd.Flags().Duration("timeout", 5*time.Minute, "overall timeout")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}
