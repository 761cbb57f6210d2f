package main

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func commandSettings(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use: "settings",
		Short: "List the four readable global settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, provider, err := openStore(opts)
			if err != nil {
				return err
			}
			values, err := provider.GetAllParameters(nil)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Parameter", "Value"})
			for _, v := range values {
				if v.IsInt {
					table.Append([]string{v.Name, strconv.FormatUint(uint64(v.Uint), 10)})
				} else {
					table.Append([]string{v.Name, strconv.FormatBool(v.Bool)})
				}
			}
			table.Render()
			return nil
		},
	}
}
