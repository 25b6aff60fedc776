package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

type streamOptions struct {
	callFlags
	collect bool
	text    bool
}

func registerStreamCmd(parent *cobra.Command) {
	opts := &streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream INPUT",
		Short: "Print output fragments as they arrive",
		Example: `  langrpc stream -e http://localhost:8000/summarize --text '{"text": "..."}'`,
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
			callOpts, err := opts.options()
			if err != nil {
				return err
			}
			st, err := s.Client.Stream(cmd.Context(), input, callOpts...)
			if err != nil {
				return err
			}
			defer func() {
				_ = st.Close()
			}()
			if opts.collect {
				out, err := st.Collect()
				if err != nil {
					return err
				}
				printValue(cmd, out)
				return nil
			}
			w := cmd.OutOrStdout()
			for st.Next() {
				frag := st.Fragment()
				if text, ok := frag.AsString(); ok && opts.text {
					_, _ = fmt.Fprint(w, text)
					continue
				}
				printValue(cmd, frag)
			}
			if opts.text {
				_, _ = fmt.Fprintln(w)
			}
			return st.Err()
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.collect, "collect", false, "Print only the concatenated output")
	cmd.Flags().BoolVar(&opts.text, "text", false, "Print string fragments without quoting or newlines")
	parent.AddCommand(cmd)
}
