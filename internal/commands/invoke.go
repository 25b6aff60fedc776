package commands

import (
	"github.com/spf13/cobra"
)

func registerInvokeCmd(parent *cobra.Command) {
	flags := &callFlags{}
	cmd := &cobra.Command{
		Use:   "invoke INPUT",
		Short: "Run the pipeline once and print its output",
		Example: `  langrpc invoke -e http://localhost:8000/summarize '{"text": "..."}'

  # compiled chain, input from stdin
  echo '{"text": "..."}' | langrpc invoke -e http://localhost:8000/summarize/c/N4XyA -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := RequireFromCommand(cmd)
			if err != nil {
				return err
			}
			input, err := parseInput(cmd, args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}
			out, err := s.Client.Invoke(cmd.Context(), input, opts...)
			if err != nil {
				return err
			}
			printValue(cmd, out)
			return nil
		},
	}
	flags.register(cmd)
	parent.AddCommand(cmd)
}
