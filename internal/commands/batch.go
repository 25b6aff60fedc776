package commands

import (
	"github.com/spf13/cobra"

	"langrpc/rpc/message"
)

func registerBatchCmd(parent *cobra.Command) {
	flags := &callFlags{}
	cmd := &cobra.Command{
		Use:   "batch INPUT...",
		Short: "Run the pipeline on several inputs, one output per line in input order",
		Example: `  langrpc batch -e http://localhost:8000/summarize '{"text": "a"}' '{"text": "b"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := RequireFromCommand(cmd)
			if err != nil {
				return err
			}
			inputs := make([]message.Value, 0, len(args))
			for _, arg := range args {
				input, err := parseInput(cmd, arg)
				if err != nil {
					return err
				}
				inputs = append(inputs, input)
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}
			outs, err := s.Client.Batch(cmd.Context(), inputs, opts...)
			if err != nil {
				return err
			}
			for _, out := range outs {
				printValue(cmd, out)
			}
			return nil
		},
	}
	flags.register(cmd)
	parent.AddCommand(cmd)
}
