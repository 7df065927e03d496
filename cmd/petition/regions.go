package main

import (
	"errors"
	"fmt"

	"petition-gateway/internal/config"

	"github.com/spf13/cobra"
)

func regionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the configured region codes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			catalog, err := cfg.Catalog()
			if err != nil {
				return err
			}
			for _, code := range catalog.Codes() {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			return nil
		},
	}
}
