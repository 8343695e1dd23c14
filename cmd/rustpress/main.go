// Command rustpress is the process entrypoint: it loads configuration,
// wires the application context (internal/appctx), and runs the server
// until a shutdown signal is received.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "rustpress",
		Short: "RustPress core runtime",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (toml/yaml/json); env vars and defaults apply regardless")

	root.AddCommand(newServeCommand())
	root.AddCommand(newPluginsCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
