// Package project loads a project's top-level YAML configuration and
// provides the runtime services elements and sources need from it: alias
// translation, merged variables/environment, and split-rule glob matching.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"

	"github.com/buildcore-project/buildcore/internal/errs"
)

// aliasSeparator is the character dividing an alias name from the URL body
// in "alias:path" shorthand, e.g. "upstream:libfoo.git".
const aliasSeparator = ":"

// SandboxConfig carries the project-wide sandbox defaults (default shell
// command and environment) from project.conf's `sandbox` key.
type SandboxConfig struct {
	Shell []string          `yaml:"shell"`
	Env   map[string]string `yaml:"environment"`
}

// PluginOrigin is one entry of the `plugins` list: where a set of source
// and element kinds comes from. Only "core" origins resolve here, since
// every built-in kind is compiled into the registry; "local" and "pip" are
// accepted at load time for configuration compatibility, but naming a kind
// the registry does not carry still fails at element-load time.
type PluginOrigin struct {
	Origin      string   `yaml:"origin"`
	Sources     []string `yaml:"sources"`
	Elements    []string `yaml:"elements"`
	Path        string   `yaml:"path"`
	PackageName string   `yaml:"package-name"`
}

// Config is the fully decoded project.conf.
type Config struct {
	Name               string               `yaml:"name"`
	FormatVersion      int                  `yaml:"format-version"`
	ElementPath        string               `yaml:"element-path"`
	VariablesMap       map[string]string    `yaml:"variables"`
	EnvironmentMap     map[string]string    `yaml:"environment"`
	EnvironmentNocache []string             `yaml:"environment-nocache"`
	Aliases            map[string]string    `yaml:"aliases"`
	Plugins            []PluginOrigin       `yaml:"plugins"`
	Options            map[string]any       `yaml:"options"`
	Artifacts          map[string]any       `yaml:"artifacts"`
	FailOnOverlap      bool                 `yaml:"fail-on-overlap"`
	RefStorage         string               `yaml:"ref-storage"`
	Shell              []string             `yaml:"shell"`
	Sandbox            SandboxConfig        `yaml:"sandbox"`
	SplitRules         map[string][]string  `yaml:"split-rules"`

	// directory is the project root, set by Load rather than decoded from
	// YAML; element-path is resolved relative to it.
	directory string
}

// defaultConfig is the builtin defaults layer, composited under whatever
// the user supplies.
func defaultConfig() Config {
	return Config{
		FormatVersion:  0,
		ElementPath:    ".",
		VariablesMap:   map[string]string{},
		EnvironmentMap: map[string]string{},
		Aliases:        map[string]string{},
		RefStorage:     "inline",
	}
}

// Load reads project.conf from dir, merging it over the builtin defaults.
// Unknown top-level keys are a load error.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "project.conf")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Load(path, 0, "read-project-conf", err)
	}

	var loaded Config
	if err := yaml.UnmarshalWithOptions(data, &loaded, yaml.DisallowUnknownField()); err != nil {
		return nil, errs.Load(path, 0, "parse-project-conf", err)
	}

	cfg := defaultConfig()
	if err := mergo.Merge(&cfg, loaded, mergo.WithOverride); err != nil {
		return nil, errs.Load(path, 0, "merge-project-defaults", err)
	}

	if cfg.Name == "" {
		return nil, errs.Load(path, 0, "validate-project-conf", fmt.Errorf("project name is required"))
	}
	if err := validatePlugins(cfg.Plugins); err != nil {
		return nil, errs.Load(path, 0, "validate-plugins", err)
	}

	cfg.directory = dir
	cfg.ElementPath = filepath.Join(dir, cfg.ElementPath)

	return &cfg, nil
}

// validatePlugins checks each origin is a recognized value and no source or
// element kind is claimed by more than one origin entry (a duplicate plugin
// listing is a load error, not a silent last-writer-wins).
func validatePlugins(origins []PluginOrigin) error {
	sourceOwner := map[string]string{}
	elementOwner := map[string]string{}
	for _, o := range origins {
		switch o.Origin {
		case "core", "local", "pip":
		default:
			return fmt.Errorf("unknown plugin origin %q (expected core, local, or pip)", o.Origin)
		}
		for _, kind := range o.Sources {
			if prev, dup := sourceOwner[kind]; dup {
				return fmt.Errorf("source kind %q listed by both %q and %q origins", kind, prev, o.Origin)
			}
			sourceOwner[kind] = o.Origin
		}
		for _, kind := range o.Elements {
			if prev, dup := elementOwner[kind]; dup {
				return fmt.Errorf("element kind %q listed by both %q and %q origins", kind, prev, o.Origin)
			}
			elementOwner[kind] = o.Origin
		}
	}
	return nil
}

// Directory returns the project root this config was loaded from.
func (c *Config) Directory() string { return c.directory }

// TranslateURL resolves an "alias:body" shorthand URL into a fully
// qualified one. Only the first colon splits. A url with no recognized
// alias prefix (or no separator at all) passes through unchanged:
// translation is a best-effort rewrite, never a validation step.
func (c *Config) TranslateURL(url string) string {
	if url == "" {
		return url
	}
	alias, body, found := strings.Cut(url, aliasSeparator)
	if !found {
		return url
	}
	aliasURL, ok := c.Aliases[alias]
	if !ok {
		return url
	}
	return aliasURL + body
}

// Variables returns the project's default variable set, satisfying
// element.ProjectHandle.
func (c *Config) Variables() map[string]string { return c.VariablesMap }

// Environment returns the env vars not already filtered by
// environment-nocache, satisfying element.ProjectHandle. Values go through
// ExpandEnv so project.conf can reference the invoking shell's environment
// (`${HOME}`, `$CI`, etc.).
func (c *Config) Environment() map[string]string { return c.filteredEnvironment() }

func (c *Config) filteredEnvironment() map[string]string {
	nocache := make(map[string]struct{}, len(c.EnvironmentNocache))
	for _, k := range c.EnvironmentNocache {
		nocache[k] = struct{}{}
	}
	out := make(map[string]string, len(c.EnvironmentMap))
	for k, v := range c.EnvironmentMap {
		if _, skip := nocache[k]; skip {
			continue
		}
		out[k] = c.ExpandEnv(v)
	}
	return out
}

// ExpandEnv expands ${VAR} and $VAR references in s against the host
// process environment, via os.Expand. Used for environment values and host
// mount sources read out of project.conf, so a project can stay portable
// across machines instead of hardcoding absolute paths.
func (c *Config) ExpandEnv(s string) string {
	return os.Expand(s, os.Getenv)
}

// MatchesSplitRule reports whether relPath matches any glob pattern
// registered for domain under split-rules, using doublestar so `**`
// recurses across directory boundaries.
func (c *Config) MatchesSplitRule(domain, relPath string) bool {
	for _, pattern := range c.SplitRules[domain] {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}
