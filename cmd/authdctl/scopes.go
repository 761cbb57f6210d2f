package main

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func commandScopes(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use: "scopes",
		Short: "List the scope universe exposed by all registered resource servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(opts)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Scope"})
			for _, s := range store.GetAllScopes() {
				table.Append([]string{s})
			}
			table.Render()
			return nil
		},
	}
}
