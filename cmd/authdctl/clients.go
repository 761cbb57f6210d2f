package main

import (
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/settings"
)

func grantTypeList(c settings.OAuthClient) string {
	var grants []string
	for grant, allowed := range c.GrantTypes {
		if allowed {
			grants = append(grants, grant)
		}
	}
	sort.Strings(grants)
	return strings.Join(grants, ", ")
}

func commandClients(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use: "clients",
		Short: "List registered OAuth clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(opts)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Client ID", "Label", "Redirect URI", "Grant Types"})
			for _, c := range store.AllClients() {
				table.Append([]string{c.ID, c.Label, c.RedirectURI, grantTypeList(c)})
			}
			table.Render()
			return nil
		},
	}
}
