// Package internal contains the main application logic for the CLI.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"langrpc/internal/commands"
	"langrpc/rpc"
)

// Run is the main application logic, extracted for testability.
// It accepts OS dependencies as parameters.
func Run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	rootCmd := commands.NewRootCmd(getenv)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

// Describe renders err for a terminal. Remote failures lead with their
// kind so validation problems stand out from outages.
func Describe(err error) string {
	red := color.New(color.FgHiRed).SprintFunc()
	var re *rpc.RemoteError
	if errors.As(err, &re) {
		return fmt.Sprintf("%s %s", red(re.Kind.String()+":"), re.Error())
	}
	return fmt.Sprintf("%s %v", red("error:"), err)
}
