package main

import (
	"fmt"
	"strings"

	"github.com/keiko-bench/keiko/internal/scenario"
	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	var listRoot string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available suites, scenarios and prompt tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			suites, err := scenario.ListSuites(listRoot)
			if err != nil {
				return fmt.Errorf("listing suites under %s: %w", listRoot, err)
			}

			out := cmd.OutOrStdout()
			for _, suite := range suites {
				names, err := scenario.ListScenarios(listRoot, suite)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n", suite)
				for _, name := range names {
					scen, err := scenario.Load(listRoot, suite, name)
					if err != nil {
						return err
					}
					tiers := scen.Tiers()
					fmt.Fprintf(out, "  %s [%s] %s\n", name, strings.Join(tiers, ", "), scen.Title)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listRoot, "root", "benchmarks", "Benchmark root directory")

	return cmd
}
