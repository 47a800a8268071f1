package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	configpkg "github.com/minhyannv/gemini-agent-go/pkg/config"
	"github.com/minhyannv/gemini-agent-go/pkg/errorsx"
	"github.com/minhyannv/gemini-agent-go/pkg/prompt"
)

// streams are the process standard streams.
type streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// runFunc starts a session with a validated configuration.
type runFunc func(ctx context.Context, cfg configpkg.Config, s streams) error

// newRootCommand builds the cobra command. Help and configuration errors are
// printed to s.Err and are not command failures.
func newRootCommand(s streams, run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agent",
		Short:         "A CLI example of an LLM agent powered by Gemini",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if wantsHelp(args) {
				printUsage(s.Err)
				return nil
			}

			v := configpkg.NewViper()
			if err := configpkg.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := configpkg.Load(v)
			if err != nil {
				if errorsx.HasReason(err, errorsx.ReasonConfigMissing) {
					_, _ = fmt.Fprintf(s.Err, "%v\n\n", err)
					printUsage(s.Err)
					return nil
				}
				return err
			}
			return run(cmd.Context(), cfg, s)
		},
	}
	cmd.SetIn(s.In)
	cmd.SetOut(s.Out)
	cmd.SetErr(s.Err)
	cmd.SetHelpFunc(func(*cobra.Command, []string) {
		printUsage(s.Err)
	})
	configpkg.RegisterFlags(cmd.Flags())
	return cmd
}

// wantsHelp reports whether the positional arguments ask for help.
// -h and --help are handled by cobra and routed to the help func.
func wantsHelp(args []string) bool {
	for _, arg := range args {
		switch strings.TrimSpace(arg) {
		case "help", "-h", "--help":
			return true
		}
	}
	return false
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, prompt.Default().Usage)
}
