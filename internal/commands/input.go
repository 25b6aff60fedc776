package commands

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"langrpc/rpc"
	"langrpc/rpc/message"
)

// parseInput reads a JSON value. "-" reads it from stdin. Text that is not
// JSON is taken as a plain string.
func parseInput(cmd *cobra.Command, arg string) (message.Value, error) {
	raw := []byte(arg)
	if arg == "-" {
		var err error
		if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return message.Value{}, err
		}
	}
	var v message.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return message.String(string(raw)), nil
	}
	return v, nil
}

type callFlags struct {
	runConfig string
	headers   map[string]string
}

func (f *callFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.runConfig, "run-config", "", `Run config as JSON, e.g. '{"tags":["cli"]}'`)
	cmd.Flags().StringToStringVarP(&f.headers, "header", "H", nil, "Extra request header, key=value")
}

func (f *callFlags) options() ([]rpc.CallOption, error) {
	var res []rpc.CallOption
	if f.runConfig != "" {
		var cfg message.Value
		if err := json.Unmarshal([]byte(f.runConfig), &cfg); err != nil {
			return nil, fmt.Errorf("--run-config: %w", err)
		}
		if cfg.Kind() != message.KindObject {
			return nil, fmt.Errorf("--run-config: want a JSON object")
		}
		res = append(res, rpc.WithConfig(cfg))
	}
	for k, v := range f.headers {
		res = append(res, rpc.WithCallHeader(k, v))
	}
	return res, nil
}

func printValue(cmd *cobra.Command, v message.Value) {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), v.String())
}
