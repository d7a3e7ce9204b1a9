package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pydeps/internal/core/errors"
)

// Version is set at build time with -ldflags "-X pydeps/internal/ui/cli.Version=...".
var Version = "0.1.0"

const (
	formatText     = "text"
	formatJSON     = "json"
	formatTSV      = "tsv"
	formatMarkdown = "markdown"
)

// errReported marks failures whose details were already printed.
var errReported = stderrors.New("reported")

type rootOptions struct {
	configPath string
	verbose    bool
	format     string
}

func (o *rootOptions) validateFormat(allowed ...string) error {
	for _, f := range allowed {
		if o.format == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported --format %q for this command (supported: %v)", o.format, allowed)
}

// NewRootCommand builds the pydeps command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{format: formatText}
	root := &cobra.Command{
		Use:   "pydeps",
		Short: "Resolve the third-party requirements of Python namespaces",
		Long: `pydeps scans configured Python namespaces, follows their internal imports
and writes the external packages each resolver group needs as requirements.txt
files or pyproject dependency arrays.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to pydeps.toml, pydeps.yaml or pyproject.toml (default: search upwards from the working directory)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", formatText, "Output format: text, json, tsv or markdown")

	root.AddCommand(
		newResolveCommand(opts),
		newWriteCommand(opts),
		newCheckCommand(opts),
		newWhyCommand(opts),
		newGraphCommand(opts),
		newHistoryCommand(opts),
		newWatchCommand(opts),
		newUICommand(opts),
		newVersionCommand(),
	)
	return root
}

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if !stderrors.Is(err, errReported) {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsFatal(err):
		return 2
	}
	return 1
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pydeps version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pydeps v%s\n", Version)
		},
	}
}
