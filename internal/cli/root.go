// Package cli implements the unistore command-line tool: open a database
// file with the usual mechanism probing and run queries or inspect its
// schema from the shell.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Name      string
	Path      string
	Mechanism string
	Schema    string
	Verbose   bool
}

// NewRootCommand creates the root command for the unistore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "unistore",
		Short: "unistore - one storage API over embedded, relational and key-value backends",
	}

	cmd.PersistentFlags().StringVarP(&opts.Name, "name", "n", "unistore", "database name")
	cmd.PersistentFlags().StringVarP(&opts.Path, "path", "p", "", "database file path (embedded mechanisms)")
	cmd.PersistentFlags().StringVarP(&opts.Mechanism, "mechanism", "m", "", "force a backend mechanism (bolt|sqlite|mysql|redis|dynamodb|session|memory)")
	cmd.PersistentFlags().StringVarP(&opts.Schema, "schema", "s", "", "schema JSON file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))

	return cmd
}
