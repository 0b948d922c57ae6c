package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/david1155/manver/pkg/version"
)

// DefaultFilename is the config file looked up when none is given.
const DefaultFilename = ".manver.toml"

// SelfKey is the file key under which the config file tracks its own
// current_version.
const SelfKey = "manver"

// DefaultCommitMessage is used when [vcs] enables commits without a message.
const DefaultCommitMessage = "release({part}): bump {current_version} -> {new_version}"

// DefaultTagName is the tag template used when tagging is enabled.
const DefaultTagName = "v{new_version}"

// Defaults for configs declaring [projects].
const (
	DefaultProjectCommitMessage = "release({part}): bump {name} {current_version} -> {new_version}"
	DefaultProjectTagName       = "{name}-v{new_version}"
)

// Format is the encoding of a config file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHCL  Format = "hcl"
)

type FileConfig struct {
	Filename string `toml:"filename" json:"filename" yaml:"filename"`
	Pattern  string `toml:"pattern" json:"pattern" yaml:"pattern"`
}

type GeneralConfig struct {
	CurrentVersion    string           `toml:"current_version" json:"current_version" yaml:"current_version" hcl:"current_version,optional"`
	BumpStrategy      version.Strategy `toml:"bump_strategy" json:"bump_strategy,omitempty" yaml:"bump_strategy,omitempty" hcl:"bump_strategy,optional"`
	ReleasePattern    string           `toml:"release_pattern" json:"release_pattern,omitempty" yaml:"release_pattern,omitempty" hcl:"release_pattern,optional"`
	PrereleaseToken   string           `toml:"prerelease_token" json:"prerelease_token,omitempty" yaml:"prerelease_token,omitempty" hcl:"prerelease_token,optional"`
	VersionConstraint string           `toml:"version_constraint" json:"version_constraint,omitempty" yaml:"version_constraint,omitempty" hcl:"version_constraint,optional"`
	CheckVersionDrift *bool            `toml:"check_version_drift" json:"check_version_drift,omitempty" yaml:"check_version_drift,omitempty" hcl:"check_version_drift,optional"`
}

type VCSConfig struct {
	Commit    bool   `toml:"commit" json:"commit" yaml:"commit" hcl:"commit,optional"`
	CommitMsg string `toml:"commit_msg" json:"commit_msg,omitempty" yaml:"commit_msg,omitempty" hcl:"commit_msg,optional"`
	Tag       bool   `toml:"tag" json:"tag,omitempty" yaml:"tag,omitempty" hcl:"tag,optional"`
	TagName   string `toml:"tag_name" json:"tag_name,omitempty" yaml:"tag_name,omitempty" hcl:"tag_name,optional"`
	Timeout   string `toml:"timeout" json:"timeout,omitempty" yaml:"timeout,omitempty" hcl:"timeout,optional"`
}

// ProjectConfig is one independently versioned project of a config with
// several. Its version line in the config file carries a "#: <name>" marker
// so that it can be told apart from the others.
type ProjectConfig struct {
	Version      string                `toml:"version" json:"version" yaml:"version"`
	BumpStrategy version.Strategy      `toml:"bump_strategy" json:"bump_strategy,omitempty" yaml:"bump_strategy,omitempty"`
	Files        map[string]FileConfig `toml:"files" json:"files" yaml:"files"`
}

// Config is a parsed configuration. Paths in Files are relative to Root, the
// directory holding the config file.
//
// A config either declares one version in [general] with its [files], or
// several [projects], each with its own version and files. Targets returns
// one single-version Config per project in the latter case.
type Config struct {
	General  *GeneralConfig           `toml:"general" json:"general" yaml:"general"`
	VCS      *VCSConfig               `toml:"vcs" json:"vcs,omitempty" yaml:"vcs,omitempty"`
	Files    map[string]FileConfig    `toml:"files" json:"files,omitempty" yaml:"files,omitempty"`
	Projects map[string]ProjectConfig `toml:"projects" json:"projects,omitempty" yaml:"projects,omitempty"`

	Path   string `toml:"-" json:"-" yaml:"-"`
	Root   string `toml:"-" json:"-" yaml:"-"`
	Format Format `toml:"-" json:"-" yaml:"-"`
	// Name is the project a target config belongs to, empty otherwise.
	Name string `toml:"-" json:"-" yaml:"-"`

	current    version.Version
	projects   map[string]version.Version
	constraint *version.Constraint
	release    *regexp.Regexp
	timeout    time.Duration
}

// FileEntry is a declared file resolved against the project root.
type FileEntry struct {
	Key     string
	Path    string
	Pattern string
}

// ConfigError reports a missing or invalid configuration entry.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// LoadConfig loads and validates the configuration file at path. The format
// follows the file extension; unknown extensions are tried as JSON, then YAML.
func LoadConfig(fsys afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ConfigError{Field: path, Reason: "empty config file"}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	cfg, err := Parse(data, abs, FormatFor(abs))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FormatFor guesses the config format from a file name. It returns "" when
// the extension is not recognised.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	case ".hcl":
		return FormatHCL
	}
	return ""
}

// Parse decodes data as format and validates the result. path is the
// absolute location of the config file; its directory becomes the root.
func Parse(data []byte, path string, format Format) (*Config, error) {
	var cfg Config

	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, &ConfigError{Field: undecoded[0].String(), Reason: "unknown key"}
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case FormatHCL:
		if err := decodeHCL(data, path, &cfg); err != nil {
			return nil, err
		}
	default:
		// Try JSON first, then YAML if that fails
		if err := json.Unmarshal(data, &cfg); err != nil {
			cfg = Config{}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
			format = FormatYAML
		} else {
			format = FormatJSON
		}
	}

	cfg.Path = path
	cfg.Root = filepath.Dir(path)
	cfg.Format = format

	if err := cfg.validate(data); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var prereleaseTokenRe = regexp.MustCompile(`^[0-9A-Za-z-]+$`)

func (c *Config) validate(data []byte) error {
	if len(c.Projects) > 0 {
		if c.General == nil {
			c.General = &GeneralConfig{}
		}
		if err := c.validateShared(); err != nil {
			return err
		}
		return c.validateProjects(data)
	}

	if c.General == nil {
		return &ConfigError{Field: "general", Reason: "missing section"}
	}
	if err := c.validateShared(); err != nil {
		return err
	}

	v, err := validateVersion("general.current_version", c.General.CurrentVersion)
	if err != nil {
		return err
	}
	c.current = v
	return validateFiles("files", c.Files)
}

// validateShared checks the settings every project inherits.
func (c *Config) validateShared() error {
	g := c.General
	var err error

	if _, err := version.StrategyFor(g.BumpStrategy); err != nil {
		return &ConfigError{Field: "general.bump_strategy", Reason: err.Error()}
	}

	pattern := g.ReleasePattern
	if pattern == "" {
		pattern = `^release`
	}
	if c.release, err = regexp.Compile(pattern); err != nil {
		return &ConfigError{Field: "general.release_pattern", Reason: err.Error()}
	}

	if g.PrereleaseToken != "" && !prereleaseTokenRe.MatchString(g.PrereleaseToken) {
		return &ConfigError{Field: "general.prerelease_token", Reason: fmt.Sprintf("%q is not a valid prerelease identifier", g.PrereleaseToken)}
	}

	if g.VersionConstraint != "" {
		if c.constraint, err = version.ParseConstraint(g.VersionConstraint); err != nil {
			return &ConfigError{Field: "general.version_constraint", Reason: err.Error()}
		}
	}

	if c.VCS != nil && c.VCS.Timeout != "" {
		if c.timeout, err = time.ParseDuration(c.VCS.Timeout); err != nil {
			return &ConfigError{Field: "vcs.timeout", Reason: err.Error()}
		}
		if c.timeout <= 0 {
			return &ConfigError{Field: "vcs.timeout", Reason: "must be positive"}
		}
	}
	return nil
}

func (c *Config) validateProjects(data []byte) error {
	if c.General.CurrentVersion != "" {
		return &ConfigError{Field: "general.current_version", Reason: "not allowed when projects are declared; set projects.<name>.version"}
	}
	if len(c.Files) > 0 {
		return &ConfigError{Field: "files", Reason: "not allowed when projects are declared; declare files per project"}
	}
	if c.Format == FormatJSON {
		return &ConfigError{Field: "projects", Reason: "JSON has no comments for the #: <name> version markers; use TOML, YAML or HCL"}
	}

	c.projects = make(map[string]version.Version, len(c.Projects))
	for name, p := range c.Projects {
		field := "projects." + name
		if name == "" {
			return &ConfigError{Field: "projects", Reason: "project name is empty"}
		}

		v, err := validateVersion(field+".version", p.Version)
		if err != nil {
			return err
		}
		if _, err := version.StrategyFor(p.BumpStrategy); err != nil {
			return &ConfigError{Field: field + ".bump_strategy", Reason: err.Error()}
		}
		if err := validateFiles(field+".files", p.Files); err != nil {
			return err
		}

		marker := regexp.MustCompile(ProjectSelfPattern(c.Format, name))
		if !hasLineMatch(marker, data) {
			return &ConfigError{Field: field + ".version", Reason: fmt.Sprintf("version line lacks the marker comment \"#: %s\"", name)}
		}
		c.projects[name] = v
	}
	return nil
}

func validateVersion(field, raw string) (version.Version, error) {
	if raw == "" {
		return version.Version{}, &ConfigError{Field: field, Reason: "missing"}
	}
	v, err := version.Parse(raw)
	if err != nil {
		return version.Version{}, &ConfigError{Field: field, Reason: err.Error()}
	}
	return v, nil
}

func validateFiles(field string, files map[string]FileConfig) error {
	if len(files) == 0 {
		return &ConfigError{Field: field, Reason: "no files declared"}
	}
	for key, f := range files {
		if key == SelfKey {
			return &ConfigError{Field: field + "." + key, Reason: "key is reserved for the config file itself"}
		}
		if f.Filename == "" {
			return &ConfigError{Field: field + "." + key + ".filename", Reason: "missing"}
		}
		if f.Pattern == "" {
			return &ConfigError{Field: field + "." + key + ".pattern", Reason: "missing"}
		}
	}
	return nil
}

func hasLineMatch(re *regexp.Regexp, data []byte) bool {
	for _, line := range bytes.Split(data, []byte("\n")) {
		if re.Match(bytes.TrimRight(line, "\r")) {
			return true
		}
	}
	return false
}

// Targets returns the configs to bump: c itself, or one per project sorted
// by name. Project configs share the [general] and [vcs] settings of c.
func (c *Config) Targets() []*Config {
	if len(c.Projects) == 0 {
		return []*Config{c}
	}

	names := make([]string, 0, len(c.Projects))
	for name := range c.Projects {
		names = append(names, name)
	}
	sort.Strings(names)

	targets := make([]*Config, 0, len(names))
	for _, name := range names {
		p := c.Projects[name]
		general := *c.General
		general.CurrentVersion = p.Version
		if p.BumpStrategy != "" {
			general.BumpStrategy = p.BumpStrategy
		}

		targets = append(targets, &Config{
			General:    &general,
			VCS:        c.VCS,
			Files:      p.Files,
			Path:       c.Path,
			Root:       c.Root,
			Format:     c.Format,
			Name:       name,
			current:    c.projects[name],
			constraint: c.constraint,
			release:    c.release,
			timeout:    c.timeout,
		})
	}
	return targets
}

// CurrentVersion is the declared version. It is zero for a config declaring
// projects; ask its Targets instead.
func (c *Config) CurrentVersion() version.Version {
	return c.current
}

// CheckVersionDrift reports whether every file must hold the declared version
// before a bump. Defaults to true.
func (c *Config) CheckVersionDrift() bool {
	if c.General == nil || c.General.CheckVersionDrift == nil {
		return true
	}
	return *c.General.CheckVersionDrift
}

// Strategy is the bump strategy used for automatic bumps.
func (c *Config) Strategy() version.BumpStrategy {
	s, err := version.StrategyFor(c.General.BumpStrategy)
	if err != nil {
		// validated on load
		return version.ConventionalCommits{}
	}
	return s
}

// ReleasePattern matches the subject of release commits.
func (c *Config) ReleasePattern() *regexp.Regexp {
	return c.release
}

// PrereleaseToken is the label a new prerelease series starts with.
func (c *Config) PrereleaseToken() string {
	if c.General.PrereleaseToken == "" {
		return version.DefaultPrereleaseToken
	}
	return c.General.PrereleaseToken
}

// Constraint guards the computed next version. It is nil when unset.
func (c *Config) Constraint() *version.Constraint {
	return c.constraint
}

// CommitEnabled reports whether bumps are committed.
func (c *Config) CommitEnabled() bool {
	return c.VCS != nil && c.VCS.Commit
}

// TagEnabled reports whether commits are tagged.
func (c *Config) TagEnabled() bool {
	return c.CommitEnabled() && c.VCS.Tag
}

// CommitMessage is the commit message template.
func (c *Config) CommitMessage() string {
	if c.VCS != nil && c.VCS.CommitMsg != "" {
		return c.VCS.CommitMsg
	}
	if c.Name != "" {
		return DefaultProjectCommitMessage
	}
	return DefaultCommitMessage
}

// TagName is the tag name template.
func (c *Config) TagName() string {
	if c.VCS != nil && c.VCS.TagName != "" {
		return c.VCS.TagName
	}
	if c.Name != "" {
		return DefaultProjectTagName
	}
	return DefaultTagName
}

// GitTimeout is the per-command timeout for git, zero when unset.
func (c *Config) GitTimeout() time.Duration {
	return c.timeout
}

// Entries returns the declared files sorted by key, followed by the config
// file itself.
func (c *Config) Entries() []FileEntry {
	keys := make([]string, 0, len(c.Files))
	for k := range c.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]FileEntry, 0, len(keys)+1)
	for _, k := range keys {
		f := c.Files[k]
		entries = append(entries, FileEntry{Key: k, Path: c.Resolve(f.Filename), Pattern: f.Pattern})
	}

	if c.Path != "" {
		pattern := SelfPattern(c.Format)
		if c.Name != "" {
			pattern = ProjectSelfPattern(c.Format, c.Name)
		}
		entries = append(entries, FileEntry{Key: SelfKey, Path: c.Path, Pattern: pattern})
	}
	return entries
}

// Resolve makes a declared filename absolute against the root.
func (c *Config) Resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filepath.Clean(filename)
	}
	return filepath.Join(c.Root, filename)
}

// Relative returns path relative to the root, falling back to path.
func (c *Config) Relative(path string) string {
	rel, err := filepath.Rel(c.Root, path)
	if err != nil {
		return path
	}
	return rel
}

// SelfPattern is the pattern locating current_version in a config file of
// the given format. TOML and HCL values may use either quote style.
func SelfPattern(format Format) string {
	switch format {
	case FormatYAML:
		return `^\s*current_version:\s*["']?([^"'\s#]+)`
	case FormatJSON:
		return `"current_version"\s*:\s*"(.+?)"`
	default:
		return `current_version\s*=\s*["']([^"']+)["']`
	}
}

// ProjectSelfPattern locates the version of project name, the line ending in
// a "#: <name>" comment.
func ProjectSelfPattern(format Format, name string) string {
	marker := `\s*#:\s?` + regexp.QuoteMeta(name) + `\s*$`
	if format == FormatYAML {
		return `^\s*version:\s*["']?([^"'\s#]+)["']?` + marker
	}
	return `version\s*=\s*["']([^"']+)["']` + marker
}
