package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newRootCmd(fsys afero.Fs, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "manver",
		Short: "Bump a semantic version everywhere it is written",
		Long: `manver keeps one semantic version in sync across the files of a project.

Each file is declared in the config together with a regular expression whose
single capture group is the version. A bump rewrites every file, and can
commit and tag the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newBumpCmd(fsys), newInitCmd(fsys))
	return root
}

func mainWithArgs(ctx context.Context, fsys afero.Fs, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(fsys, stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := mainWithArgs(ctx, afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		stop()
		os.Exit(1)
	}
}
