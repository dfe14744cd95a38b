package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/unistore/pkg/unistore"
)

// open builds a Storage from the global flags and waits for readiness.
func open(opts *RootOptions) (*unistore.Storage, error) {
	var schemaSrc interface{}
	if opts.Schema != "" {
		raw, err := os.ReadFile(opts.Schema)
		if err != nil {
			return nil, fmt.Errorf("cannot read schema file: %w", err)
		}
		schemaSrc = raw
	}
	var options []unistore.Option
	if opts.Path != "" {
		options = append(options, unistore.WithPath(opts.Path))
	}
	if opts.Mechanism != "" {
		options = append(options, unistore.WithMechanisms(opts.Mechanism))
	}
	s, err := unistore.New(opts.Name, schemaSrc, options...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := s.Ready().Await(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if opts.Verbose {
		fmt.Fprintf(os.Stderr, "connected via %s\n", s.Type())
	}
	return s, nil
}

func await(r *unistore.Request) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return r.Await(ctx)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewQueryCommand runs one statement of the restricted SQL dialect.
func NewQueryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a query (SELECT, COUNT, SUM, AVG, MIN, MAX, CONCAT)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			result, err := await(s.Query(args[0]))
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

// NewSchemaCommand prints the connected database's schema.
func NewSchemaCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			decl, err := s.GetSchema()
			if err != nil {
				return err
			}
			return printJSON(decl)
		},
	}
}

// NewPutCommand upserts one JSON record.
func NewPutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <store> <record-json>",
		Short: "Upsert a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			var rec unistore.Record
			if err := json.Unmarshal([]byte(args[1]), &rec); err != nil {
				return fmt.Errorf("invalid record JSON: %w", err)
			}
			k, err := await(s.Put(args[0], rec))
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"key": k})
		},
	}
}

// NewGetCommand fetches one record by key.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <store> <key>",
		Short: "Fetch a record by key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			var k interface{} = args[1]
			var n float64
			if _, err := fmt.Sscanf(args[1], "%g", &n); err == nil {
				k = n
			}
			rec, err := await(s.Get(args[0], k))
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
}
