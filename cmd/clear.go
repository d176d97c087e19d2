package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/courier/internal/orchestrator"
)

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <user>",
		Short: "Delete a user's conversation history",
		Long:  "Deletes all stored messages for the given user. Address prefixes like \"whatsapp:\" are stripped before matching.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := context.Background()
			if err := s.Bootstrap(ctx); err != nil {
				return err
			}

			userID := orchestrator.NormalizeUserID(args[0])
			if err := s.Clear(ctx, userID); err != nil {
				return fmt.Errorf("clear history: %w", err)
			}
			fmt.Printf("history cleared for %s\n", userID)
			return nil
		},
	}
}
