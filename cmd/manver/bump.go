package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/david1155/manver/internal/logging"
	"github.com/david1155/manver/internal/manager"
	"github.com/david1155/manver/internal/vcs"
	"github.com/david1155/manver/pkg/config"
	"github.com/david1155/manver/pkg/version"
)

type bumpFlags struct {
	configFile string
	part       string
	logLevel   string
	dryRun     bool
	noCommit   bool
}

func newBumpCmd(fsys afero.Fs) *cobra.Command {
	var flags bumpFlags

	cmd := &cobra.Command{
		Use:   "bump",
		Short: "Bump the version in every declared file",
		Long: `Bump the version in every declared file.

With --part auto (the default) the part is inferred from the conventional
commits made since the last release commit. A config declaring [projects]
bumps every project, each with its own version, files and commit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBump(cmd, fsys, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configFile, "config", "c", config.DefaultFilename, "Path to config file (TOML, YAML, JSON or HCL)")
	f.StringVarP(&flags.part, "part", "p", string(version.PartAuto), "Part to bump: auto, major, minor, patch or prerelease")
	f.StringVar(&flags.logLevel, "log-level", logging.LevelInfo, "Log level: debug, info, warn, error or none")
	f.BoolVar(&flags.dryRun, "dry-run", false, "Preview changes without modifying files")
	f.BoolVar(&flags.noCommit, "no-commit", false, "Do not commit or tag, even if the config says so")
	return cmd
}

func runBump(cmd *cobra.Command, fsys afero.Fs, flags bumpFlags) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	level := flags.logLevel
	if !cmd.Flags().Changed("log-level") {
		level = env.LogLevel
	}
	logger, err := logging.New(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	defer func() { _ = logger.Sync() }()

	part, err := version.ParsePart(flags.part)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(fsys, flags.configFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	cfg.ApplyEnv(env)

	git := vcs.NewGit(cfg.Root,
		vcs.WithTimeout(cfg.GitTimeout()),
		vcs.WithReleasePattern(cfg.ReleasePattern()),
		vcs.WithLogger(logger.Named("git")),
	)

	targets := cfg.Targets()
	managers := make([]*manager.Manager, 0, len(targets))
	for _, target := range targets {
		l := logger
		if target.Name != "" {
			l = logger.With(zap.String("project", target.Name))
		}
		opts := []manager.Option{
			manager.WithFs(fsys),
			manager.WithLogger(l),
			manager.WithSource(git),
		}
		if flags.noCommit {
			opts = append(opts, manager.WithCommit(false))
		}
		managers = append(managers, manager.New(target, opts...))
	}

	decisions, err := manager.RunAll(cmd.Context(), managers, part, flags.dryRun)
	for i, d := range decisions {
		printReport(cmd.OutOrStdout(), cfg, managers[i], d, flags.dryRun)
	}
	return err
}

func printReport(w io.Writer, cfg *config.Config, m *manager.Manager, d *manager.Decision, dryRun bool) {
	bold := color.New(color.Bold)
	from := color.New(color.FgRed)
	to := color.New(color.FgGreen)

	header := fmt.Sprintf("%s: %s -> %s", d.Part, from.Sprint(d.Previous), to.Sprint(d.Next))
	if d.Project != "" {
		header = d.Project + " " + header
	}
	if dryRun {
		header += color.YellowString(" (dry run)")
	}
	bold.Fprintln(w, header)

	for _, c := range d.Changes {
		fmt.Fprintf(w, "  %s:%d  %s -> %s\n", cfg.Relative(c.Path), c.Line+1, from.Sprint(c.From), to.Sprint(c.To))
	}

	switch {
	case dryRun:
		if m.Committing() {
			fmt.Fprintf(w, "would commit %q\n", d.Message)
		}
	case m.State() == manager.Committed:
		fmt.Fprintf(w, "%s %q\n", color.GreenString("committed"), d.Message)
		if d.Tagged {
			fmt.Fprintf(w, "%s %s\n", color.GreenString("tagged"), d.TagName)
		}
	}
}
