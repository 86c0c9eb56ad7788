package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/buildcore-project/buildcore/internal/errs"
	"github.com/buildcore-project/buildcore/internal/fileutil"
)

// DepType is a dependency's role: build-only, runtime-only, or both.
type DepType string

const (
	DepBuild   DepType = "build"
	DepRuntime DepType = "runtime"
	DepAll     DepType = "all"
)

// Dependency names another element this one depends on. A plain string
// entry in YAML ("depends: [libfoo]") decodes to {Name: "libfoo", Type:
// DepAll}; only the expanded mapping form sets Type/Junction explicitly.
type Dependency struct {
	Name     string  `yaml:"filename"`
	Type     DepType `yaml:"type"`
	Junction string  `yaml:"junction"`
}

// SourceDescriptor is one entry of an element file's `sources` list. Config
// carries kind-specific settings (e.g. git auth) through to the source
// kind's constructor.
type SourceDescriptor struct {
	Kind   string         `yaml:"kind"`
	URL    string         `yaml:"url"`
	Ref    string         `yaml:"ref"`
	Config map[string]any `yaml:"config"`
}

// ElementFile is the decoded form of one element's YAML document, relative
// to the project's element-path.
type ElementFile struct {
	Kind    string             `yaml:"kind"`
	Sources []SourceDescriptor `yaml:"sources"`
	Depends []Dependency       `yaml:"-"`
	Config  map[string]any     `yaml:"config"`

	// Name is the element's project-qualified identity, derived from its
	// file path rather than decoded from the document body.
	Name string `yaml:"-"`
}

// rawElementFile mirrors ElementFile but leaves `depends` as loosely typed
// YAML so LoadElementFile can normalize both the bare-name and expanded
// mapping forms.
type rawElementFile struct {
	Kind    string             `yaml:"kind"`
	Sources []SourceDescriptor `yaml:"sources"`
	Depends []any              `yaml:"depends"`
	// Config is the kind-specific configuration block, handed opaquely to
	// the element kind's constructor, which decodes and validates it.
	Config map[string]any `yaml:"config"`
}

// LoadElementFile reads and parses one element file. relPath is searched
// first under element-path, then under the project root, so a CLI target
// can be given relative to either.
func LoadElementFile(cfg *Config, relPath string) (*ElementFile, error) {
	resolver := fileutil.NewFileResolver([]string{cfg.ElementPath, cfg.Directory()})
	fullPath, err := resolver.ResolveFilePath(relPath)
	if err != nil {
		return nil, errs.Load(relPath, 0, "resolve-element-file", err)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, errs.Load(fullPath, 0, "read-element-file", err)
	}

	var raw rawElementFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errs.Load(fullPath, 0, "parse-element-file", err)
	}
	if raw.Kind == "" {
		return nil, errs.Load(fullPath, 0, "validate-element-file", fmt.Errorf("element %q: kind is required", relPath))
	}

	deps, err := normalizeDepends(raw.Depends)
	if err != nil {
		return nil, errs.Load(fullPath, 0, "parse-depends", fmt.Errorf("element %q: %w", relPath, err))
	}

	name := elementName(cfg, relPath)
	return &ElementFile{
		Kind:    raw.Kind,
		Sources: raw.Sources,
		Depends: deps,
		Config:  raw.Config,
		Name:    name,
	}, nil
}

// elementName derives an element's project-qualified name from its file
// path: the project name, a colon, and the path relative to element-path
// with its extension stripped.
func elementName(cfg *Config, relPath string) string {
	trimmed := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return cfg.Name + ":" + filepath.ToSlash(trimmed)
}

// normalizeDepends accepts both the bare-name shorthand ("libfoo") and the
// expanded mapping form ({filename: libfoo, type: build}) of a depends
// entry, defaulting Type to "all" when unspecified.
func normalizeDepends(raw []any) ([]Dependency, error) {
	out := make([]Dependency, 0, len(raw))
	for _, entry := range raw {
		switch v := entry.(type) {
		case string:
			out = append(out, Dependency{Name: v, Type: DepAll})
		case map[string]any:
			d := Dependency{Type: DepAll}
			if name, ok := v["filename"].(string); ok {
				d.Name = name
			} else {
				return nil, fmt.Errorf("depends entry missing filename: %v", v)
			}
			if t, ok := v["type"].(string); ok {
				d.Type = DepType(t)
			}
			if j, ok := v["junction"].(string); ok {
				d.Junction = j
			}
			out = append(out, d)
		default:
			return nil, fmt.Errorf("unsupported depends entry: %v", entry)
		}
	}
	return out, nil
}
