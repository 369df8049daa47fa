package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yungbote/teamchat-backend/internal/app"
)

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load accounts, users and teams from a YAML fixture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fx, err := app.LoadFixtures(file)
			if err != nil {
				return err
			}
			dbService, err := app.OpenDB(log, cfg)
			if err != nil {
				return err
			}
			defer dbService.Close()

			res, err := app.Seed(cmd.Context(), dbService.DB(), fx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range sortedKeys(res.Accounts) {
				fmt.Fprintf(out, "account %-24s id=%d\n", name, res.Accounts[name])
			}
			for _, email := range sortedKeys(res.Users) {
				fmt.Fprintf(out, "user    %-24s id=%d\n", email, res.Users[email])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "fixtures.yaml", "fixture file")
	return cmd
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
