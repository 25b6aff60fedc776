package commands

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/spf13/cobra"

	"langrpc/rpc"
)

var schemaGetters = map[string]func(c *rpc.Client, ctx context.Context) (*jsonschema.Schema, error){
	"input":  (*rpc.Client).InputSchema,
	"output": (*rpc.Client).OutputSchema,
	"config": (*rpc.Client).ConfigSchema,
}

func registerSchemaCmd(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:       "schema {input|output|config}",
		Short:     "Print a JSON schema published by the runnable",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"input", "output", "config"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := RequireFromCommand(cmd)
			if err != nil {
				return err
			}
			schema, err := schemaGetters[args[0]](s.Client, cmd.Context())
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	parent.AddCommand(cmd)
}
