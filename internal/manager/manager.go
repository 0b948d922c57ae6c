// Package manager drives a version bump across every declared file: load,
// validate, bump, save and commit, in that order.
package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/david1155/manver/internal/fileversion"
	"github.com/david1155/manver/internal/vcs"
	"github.com/david1155/manver/pkg/config"
	"github.com/david1155/manver/pkg/version"
)

// State is a step of the bump workflow.
type State int

const (
	Unloaded State = iota
	Loaded
	Validated
	Bumped
	Saved
	Committed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Validated:
		return "validated"
	case Bumped:
		return "bumped"
	case Saved:
		return "saved"
	case Committed:
		return "committed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// File is a declared file and the version record read from it.
type File struct {
	Key    string
	Record *fileversion.Record
}

// FileChange describes the rewrite of one record.
type FileChange struct {
	Key  string
	Path string
	Line int
	From string
	To   string
}

// Decision is the outcome of a bump: which part moved, the versions on
// either side, and the commit message and tag name derived from them.
// Tagged is set once the tag exists.
type Decision struct {
	Project  string
	Part     version.Part
	Previous version.Version
	Next     version.Version
	Message  string
	TagName  string
	Changes  []FileChange
	Tagged   bool
}

// Manager runs the bump workflow for one configuration.
type Manager struct {
	cfg        *config.Config
	fs         afero.Fs
	logger     *zap.Logger
	source     vcs.Source
	commit     bool
	tag        bool
	driftCheck bool
	strategy   version.BumpStrategy

	state    State
	current  version.Version
	files    []File
	decision *Decision
}

// Option configures a Manager.
type Option func(*Manager)

func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSource sets the revision-control source used for automatic bumps and
// commits.
func WithSource(src vcs.Source) Option {
	return func(m *Manager) { m.source = src }
}

// WithCommit overrides vcs.commit.
func WithCommit(on bool) Option {
	return func(m *Manager) { m.commit = on }
}

// WithTag overrides vcs.tag.
func WithTag(on bool) Option {
	return func(m *Manager) { m.tag = on }
}

// WithDriftCheck overrides general.check_version_drift.
func WithDriftCheck(on bool) Option {
	return func(m *Manager) { m.driftCheck = on }
}

// WithStrategy sets the strategy used for automatic bumps.
func WithStrategy(s version.BumpStrategy) Option {
	return func(m *Manager) {
		if s != nil {
			m.strategy = s
		}
	}
}

// New returns a manager in the Unloaded state. Defaults come from cfg.
func New(cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		fs:         afero.NewOsFs(),
		logger:     zap.NewNop(),
		commit:     cfg.CommitEnabled(),
		tag:        cfg.TagEnabled(),
		driftCheck: cfg.CheckVersionDrift(),
		strategy:   cfg.Strategy(),
		current:    cfg.CurrentVersion(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State { return m.state }

// Current is the canonical version: the declared one until a bump succeeds.
func (m *Manager) Current() version.Version { return m.current }

func (m *Manager) Files() []File { return m.files }

// Decision is the last bump decision, nil before Bump.
func (m *Manager) Decision() *Decision { return m.decision }

func (m *Manager) fail(to State, err error) error {
	return &TransitionError{From: m.state, To: to, Err: err}
}

func (m *Manager) expect(s, to State) error {
	if m.state != s {
		return m.fail(to, fmt.Errorf("%w: expected %s", ErrInvalidState, s))
	}
	return nil
}

// Load reads the version of every declared file. With commit integration on,
// it first refuses a dirty working tree, before any file is opened.
func (m *Manager) Load(ctx context.Context) error {
	if err := m.expect(Unloaded, Loaded); err != nil {
		return err
	}

	if m.commit {
		if m.source == nil {
			return m.fail(Loaded, errors.New("commit integration is enabled but no revision-control source is set"))
		}
		clean, err := m.source.IsClean(ctx)
		if err != nil {
			return m.fail(Loaded, fmt.Errorf("checking working tree: %w", err))
		}
		if !clean {
			return m.fail(Loaded, &DirtyWorkingTreeError{Root: m.cfg.Root})
		}
	}

	entries := m.cfg.Entries()
	files := make([]File, 0, len(entries))
	for _, e := range entries {
		pattern, err := fileversion.CompilePattern(e.Pattern)
		if err != nil {
			return m.fail(Loaded, fmt.Errorf("file %q: %w", e.Key, err))
		}
		rec, err := fileversion.Load(m.fs, e.Path, pattern)
		if err != nil {
			return m.fail(Loaded, fmt.Errorf("file %q: %w", e.Key, err))
		}
		m.logger.Debug("located version",
			zap.String("key", e.Key),
			zap.String("file", e.Path),
			zap.Int("line", rec.Line+1),
			zap.String("version", rec.Captured))
		files = append(files, File{Key: e.Key, Record: rec})
	}

	m.files = files
	m.state = Loaded
	m.logger.Info("loaded", zap.Int("files", len(files)), zap.Stringer("version", m.current))
	return nil
}

// Validate checks that every file holds the declared version.
func (m *Manager) Validate() error {
	if err := m.expect(Loaded, Validated); err != nil {
		return err
	}

	if m.driftCheck {
		declared := m.current.String()
		for _, f := range m.files {
			if f.Record.Captured != declared {
				return m.fail(Validated, &VersionDriftError{
					File:     f.Record.Path,
					Found:    f.Record.Captured,
					Declared: declared,
				})
			}
		}
	} else {
		m.logger.Debug("version drift check disabled")
	}

	m.state = Validated
	return nil
}

// Bump computes the next version and applies it to every record in memory.
// PartAuto asks the configured strategy, fed with the commits since the last
// release.
func (m *Manager) Bump(ctx context.Context, part version.Part) error {
	if err := m.expect(Validated, Bumped); err != nil {
		return err
	}

	resolved, err := m.resolve(ctx, part)
	if err != nil {
		return m.fail(Bumped, err)
	}

	prev := m.current
	next, err := prev.Next(resolved, m.cfg.PrereleaseToken())
	if err != nil {
		return m.fail(Bumped, err)
	}
	if err := m.cfg.Constraint().Check(next); err != nil {
		return m.fail(Bumped, err)
	}

	changes := make([]FileChange, 0, len(m.files))
	for _, f := range m.files {
		changes = append(changes, FileChange{
			Key:  f.Key,
			Path: f.Record.Path,
			Line: f.Record.Line,
			From: f.Record.Captured,
			To:   next.String(),
		})
		f.Record.Version = next
	}
	m.current = next

	name := m.cfg.Name
	m.decision = &Decision{
		Project:  name,
		Part:     resolved,
		Previous: prev,
		Next:     next,
		Message:  FormatTemplate(m.cfg.CommitMessage(), name, resolved, prev, next),
		TagName:  FormatTemplate(m.cfg.TagName(), name, resolved, prev, next),
		Changes:  changes,
	}
	m.state = Bumped
	m.logger.Info("bumped", zap.Stringer("part", resolved), zap.Stringer("from", prev), zap.Stringer("to", next))
	return nil
}

func (m *Manager) resolve(ctx context.Context, part version.Part) (version.Part, error) {
	if part != version.PartAuto {
		return version.Explicit{Part: part}.Decide("")
	}

	if !m.strategy.NeedsHistory() {
		return m.strategy.Decide("")
	}
	if m.source == nil {
		return "", &version.UnsupportedBumpError{Part: part, Reason: "automatic bumps need a revision-control source"}
	}

	// The config file changes with every project's release, so in project
	// mode only the project's own files date its last release.
	paths := make([]string, 0, len(m.files))
	for _, f := range m.files {
		if m.cfg.Name != "" && f.Key == config.SelfKey {
			continue
		}
		paths = append(paths, m.cfg.Relative(f.Record.Path))
	}

	marker, err := m.source.FindMarker(ctx, paths)
	if err != nil {
		return "", fmt.Errorf("finding last release: %w", err)
	}
	commits, err := m.source.LogSince(ctx, marker)
	if err != nil {
		return "", fmt.Errorf("reading history since %s: %w", marker, err)
	}
	m.logger.Debug("deciding from history", zap.String("marker", marker), zap.Int("commits", len(commits)))

	return m.strategy.Decide(vcs.FormatLog(commits))
}

// Save writes every changed file. Either all files are written or, on
// failure, the ones already written are restored.
func (m *Manager) Save() error {
	if err := m.expect(Bumped, Saved); err != nil {
		return err
	}

	records := make([]*fileversion.Record, 0, len(m.files))
	for _, f := range m.files {
		records = append(records, f.Record)
	}

	plan, err := fileversion.NewPlan(m.fs, records)
	if err != nil {
		return m.fail(Saved, err)
	}
	if err := plan.Apply(); err != nil {
		return m.fail(Saved, err)
	}

	m.state = Saved
	m.logger.Info("saved", zap.Strings("files", plan.Paths()))
	return nil
}

// Commit stages the rewritten files, commits them and tags the commit when
// tagging is enabled. It does nothing when commit integration is off.
func (m *Manager) Commit(ctx context.Context) error {
	if err := m.expect(Saved, Committed); err != nil {
		return err
	}
	if !m.commit {
		m.logger.Debug("commit integration disabled")
		return nil
	}
	if m.source == nil {
		return m.fail(Committed, errors.New("no revision-control source set"))
	}

	seen := make(map[string]bool, len(m.files))
	var paths []string
	for _, f := range m.files {
		p := m.cfg.Relative(f.Record.Path)
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	if err := m.source.Stage(ctx, paths); err != nil {
		return m.fail(Committed, fmt.Errorf("staging: %w", err))
	}
	if err := m.source.Commit(ctx, m.decision.Message); err != nil {
		return m.fail(Committed, fmt.Errorf("committing: %w", err))
	}

	if m.tag {
		err := vcs.Tag(ctx, m.source, m.decision.TagName, m.decision.Message)
		switch {
		case errors.Is(err, vcs.ErrTagUnsupported):
			m.logger.Warn("skipping tag", zap.String("tag", m.decision.TagName), zap.Error(err))
		case err != nil:
			return m.fail(Committed, fmt.Errorf("tagging: %w", err))
		default:
			m.decision.Tagged = true
		}
	}

	m.state = Committed
	m.logger.Info("committed", zap.String("message", m.decision.Message))
	return nil
}

// Run drives the whole workflow. A dry run stops once the bump is computed
// and leaves every file untouched.
func (m *Manager) Run(ctx context.Context, part version.Part, dryRun bool) (*Decision, error) {
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := m.Bump(ctx, part); err != nil {
		return nil, err
	}
	if dryRun {
		return m.decision, nil
	}
	if err := m.Save(); err != nil {
		return nil, err
	}
	if err := m.Commit(ctx); err != nil {
		return m.decision, err
	}
	return m.decision, nil
}

// Committing reports whether Commit will create a commit.
func (m *Manager) Committing() bool {
	return m.commit
}

// Name is the project the manager bumps, empty outside project mode.
func (m *Manager) Name() string {
	return m.cfg.Name
}

// RunAll bumps several projects as one release. Every manager is loaded,
// validated and bumped before any file is written, so a drift or a dirty
// tree in one project leaves all of them untouched. Each project is then
// saved and committed in turn. A dry run stops after the first phase.
func RunAll(ctx context.Context, managers []*Manager, part version.Part, dryRun bool) ([]*Decision, error) {
	for _, m := range managers {
		if err := m.Load(ctx); err != nil {
			return nil, m.wrap(err)
		}
		if err := m.Validate(); err != nil {
			return nil, m.wrap(err)
		}
		if err := m.Bump(ctx, part); err != nil {
			return nil, m.wrap(err)
		}
	}

	decisions := make([]*Decision, 0, len(managers))
	for _, m := range managers {
		decisions = append(decisions, m.decision)
	}
	if dryRun {
		return decisions, nil
	}

	for i, m := range managers {
		if err := m.Save(); err != nil {
			return decisions[:i], m.wrap(err)
		}
		if err := m.Commit(ctx); err != nil {
			return decisions[:i+1], m.wrap(err)
		}
	}
	return decisions, nil
}

func (m *Manager) wrap(err error) error {
	if m.cfg.Name == "" {
		return err
	}
	return fmt.Errorf("project %q: %w", m.cfg.Name, err)
}
