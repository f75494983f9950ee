package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var casesLimit int

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Browse persisted case records",
}

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent cases, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openCaseStore(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		records, err := a.cases.List(cmd.Context(), casesLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

var casesGetCmd = &cobra.Command{
	Use:   "get <case-id>",
	Short: "Show one case record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openCaseStore(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		rec, err := a.cases.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

func init() {
	casesListCmd.Flags().IntVarP(&casesLimit, "limit", "n", 20, "maximum records to show")
	casesCmd.AddCommand(casesListCmd, casesGetCmd)
}

func openCaseStore(cmd *cobra.Command) (*app, error) {
	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return nil, err
	}
	if a.cases == nil {
		a.Close(context.Background())
		return nil, fmt.Errorf("no case store configured (store.backend is %q)", a.cfg.Store.Backend)
	}
	return a, nil
}
