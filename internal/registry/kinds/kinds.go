// Package kinds registers the built-in source and element kinds against
// the plugin registry. Importing it for side effects (blank import in
// cmd/buildcore) wires up "git", "archive", "local" sources and
// "script", "compose", "stack" elements — the concrete kind
// implementations spec.md scoped out of the core but which the full
// project still needs to be buildable end to end.
package kinds

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/buildcore-project/buildcore/internal/registry"
	"github.com/buildcore-project/buildcore/internal/source"
)

// CommandLister is implemented by element kinds that run a shell command
// list inside the sandbox, letting the build queue stay agnostic of which
// concrete kind an element is.
type CommandLister interface {
	ShellCommands() []string
}

// Unioner is implemented by element kinds whose build output is the union
// of their dependencies' staged trees rather than (or in addition to) a
// sandbox command's output, letting the build queue's staging step decide
// whether to copy dependency trees into the output directory.
type Unioner interface {
	UnionDeps() bool
}

// ScriptKind runs its step list inside the sandbox. It is the common case:
// most elements in a real project are "script" elements.
type ScriptKind struct {
	Commands []string `mapstructure:"commands"`
}

func (ScriptKind) ID() string             { return "script" }
func (ScriptKind) FormatVersion() int     { return 1 }
func (k ScriptKind) ShellCommands() []string { return k.Commands }

// ComposeKind unions the filesystem trees of its dependencies with no
// sandbox run of its own — useful for grouping a set of build outputs
// under one element identity without adding a build step.
type ComposeKind struct{}

func (ComposeKind) ID() string         { return "compose" }
func (ComposeKind) FormatVersion() int { return 1 }
func (ComposeKind) UnionDeps() bool    { return true }

// StackKind is compose plus a final integration script, run in the
// sandbox against the unioned tree.
type StackKind struct {
	Integrate []string `mapstructure:"integrate"`
}

func (StackKind) ID() string                { return "stack" }
func (StackKind) FormatVersion() int        { return 1 }
func (k StackKind) ShellCommands() []string { return k.Integrate }
func (StackKind) UnionDeps() bool           { return true }

func init() {
	registry.RegisterSourceKind("git", func(cfg map[string]any) (source.Kind, error) {
		return source.GitKind{}, nil
	})
	registry.RegisterSourceKind("archive", func(cfg map[string]any) (source.Kind, error) {
		return source.ArchiveKind{}, nil
	})
	registry.RegisterSourceKind("local", func(cfg map[string]any) (source.Kind, error) {
		return source.LocalKind{}, nil
	})

	registry.RegisterElementKind("script", func(cfg map[string]any) (registry.ElementKind, error) {
		var k ScriptKind
		if err := decodeConfig(cfg, &k); err != nil {
			return nil, fmt.Errorf("script kind: %w", err)
		}
		return k, nil
	})
	registry.RegisterElementKind("compose", func(cfg map[string]any) (registry.ElementKind, error) {
		return ComposeKind{}, nil
	})
	registry.RegisterElementKind("stack", func(cfg map[string]any) (registry.ElementKind, error) {
		var k StackKind
		if err := decodeConfig(cfg, &k); err != nil {
			return nil, fmt.Errorf("stack kind: %w", err)
		}
		return k, nil
	})
}

// decodeConfig decodes an element's loosely-typed YAML config block into a
// kind's strongly-typed struct, erroring on fields that don't match rather
// than silently dropping them.
func decodeConfig(cfg map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(cfg)
}
