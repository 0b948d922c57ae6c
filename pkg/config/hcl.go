package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/david1155/manver/pkg/version"
)

// hclDocument is the HCL layout of a config file:
//
//	general {
//	  current_version = "0.1.0"
//	}
//
//	file "python" {
//	  filename = "src/__init__.py"
//	  pattern  = "__version__ = \"(.+?)\""
//	}
//
// Several projects are declared with project blocks instead:
//
//	project "api" {
//	  version = "1.0.0" #: api
//	  file "app" { ... }
//	}
type hclDocument struct {
	General  *GeneralConfig `hcl:"general,block"`
	VCS      *VCSConfig     `hcl:"vcs,block"`
	Files    []hclFile      `hcl:"file,block"`
	Projects []hclProject   `hcl:"project,block"`
}

type hclProject struct {
	Name         string    `hcl:"name,label"`
	Version      string    `hcl:"version"`
	BumpStrategy string    `hcl:"bump_strategy,optional"`
	Files        []hclFile `hcl:"file,block"`
}

type hclFile struct {
	Key      string `hcl:"key,label"`
	Filename string `hcl:"filename"`
	Pattern  string `hcl:"pattern"`
}

func decodeHCL(data []byte, path string, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return fmt.Errorf("parsing config file: %w", diags)
	}

	var doc hclDocument
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &doc); diags.HasErrors() {
		return fmt.Errorf("decoding config file: %w", diags)
	}

	cfg.General = doc.General
	cfg.VCS = doc.VCS

	files, err := hclFiles("file", doc.Files)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		cfg.Files = files
	}

	for _, p := range doc.Projects {
		if cfg.Projects == nil {
			cfg.Projects = make(map[string]ProjectConfig, len(doc.Projects))
		}
		if _, dup := cfg.Projects[p.Name]; dup {
			return &ConfigError{Field: "project." + p.Name, Reason: "declared more than once"}
		}
		files, err := hclFiles("project."+p.Name+".file", p.Files)
		if err != nil {
			return err
		}
		cfg.Projects[p.Name] = ProjectConfig{
			Version:      p.Version,
			BumpStrategy: version.Strategy(p.BumpStrategy),
			Files:        files,
		}
	}
	return nil
}

func hclFiles(field string, blocks []hclFile) (map[string]FileConfig, error) {
	files := make(map[string]FileConfig, len(blocks))
	for _, f := range blocks {
		if _, dup := files[f.Key]; dup {
			return nil, &ConfigError{Field: field + "." + f.Key, Reason: "declared more than once"}
		}
		files[f.Key] = FileConfig{Filename: f.Filename, Pattern: f.Pattern}
	}
	return files, nil
}

// evalContext exposes the process environment as the env object, so that
// expressions like env.HOME resolve.
func evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}
