// Package commands contains all CLI command definitions.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates and returns the root command for the CLI. getenv
// supplies the LANGRPC_* overrides.
func NewRootCmd(getenv func(string) string) *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "langrpc",
		Short:         "Call runnables served in the LangServe route layout",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.loadSession(cmd, getenv)
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a langrpc.yaml file")
	flags.StringVarP(&opts.endpoint, "endpoint", "e", "", "Base URL of the runnable, e.g. http://localhost:8000/summarize")
	flags.StringVarP(&opts.timeout, "timeout", "t", "", "Per call timeout, e.g. 30s or 30")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (CRITICAL, ERROR, WARNING, NOTICE, INFO, DEBUG)")

	registerInvokeCmd(rootCmd)
	registerBatchCmd(rootCmd)
	registerStreamCmd(rootCmd)
	registerSchemaCmd(rootCmd)
	for _, sub := range rootCmd.Commands() {
		closeSessionAfter(sub)
	}

	return rootCmd
}

// closeSessionAfter releases the session once cmd ran, whether it failed
// or not. Post-run hooks are skipped after a failing RunE.
func closeSessionAfter(cmd *cobra.Command) {
	run := cmd.RunE
	if run == nil {
		return
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		defer func() {
			if s, err := RequireFromCommand(cmd); err == nil {
				s.Close()
			}
		}()
		return run(cmd, args)
	}
}
