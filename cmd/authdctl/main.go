// Command authdctl is a read-only inspection tool for an authd
// configuration. It loads the configuration files itself and reads them
// through an in-process paramprovider.Provider and settings store; it does
// not connect to a running authd process.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/paramprovider"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/settings"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/tokens"
)

type rootOptions struct {
	configDir string
	clientsDir string
	resourceServersDir string
}

func commandRoot() *cobra.Command {
	opts := rootOptions{}
	cmd := &cobra.Command{
		Use: "authdctl",
		Short: "Inspect a running authd configuration",
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "/etc/authd", "Directory holding authd.conf")
	cmd.PersistentFlags().StringVar(&opts.clientsDir, "clients-dir", "/etc/authd/clients.d", "Directory of <client_id>.conf files")
	cmd.PersistentFlags().StringVar(&opts.resourceServersDir, "resource-servers-dir", "/etc/authd/resource_servers.d", "Directory of <server_id>.conf files")

	cmd.AddCommand(commandSettings(&opts))
	cmd.AddCommand(commandClients(&opts))
	cmd.AddCommand(commandScopes(&opts))
	return cmd
}

// openStore loads a read-only snapshot of the settings store authdctl
// inspects. authdctl never writes, so a fresh load per invocation is
// sufficient; it does not share a process with authd.
func openStore(opts *rootOptions) (*settings.Store, *paramprovider.Provider, error) {
	store, err := settings.New(settings.Paths{
		ConfigFile: filepath.Join(opts.configDir, "authd.conf"),
		ClientsDir: opts.clientsDir,
		ResourceServersDir: opts.resourceServersDir,
	}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}
	tok, err := tokens.New(0, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing token handler: %w", err)
	}
	return store, paramprovider.New(store, tok), nil
}

func main() {
	if err := commandRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
