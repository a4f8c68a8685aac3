// Package config holds the compiler options consumed by the semantic core
// and loads them from a ragaz.yaml project file.
package config

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// DefaultMaxInstantiationDepth bounds nested generic instantiation chains.
const DefaultMaxInstantiationDepth = 64

// Options toggles semantic behaviors of the core.
type Options struct {
	// Prelude lists extra AST files loaded before the inputs.
	Prelude []string `yaml:"prelude"`
	// Compiler is a semver constraint the running compiler must satisfy.
	Compiler string `yaml:"compiler"`
	// MaxInstantiationDepth bounds generic recursion.
	MaxInstantiationDepth int `yaml:"max_instantiation_depth"`
	// AutoCast enables implicit numeric widening.
	AutoCast bool `yaml:"auto_cast"`
	// CheckMutability enables the mutability overlay of the ownership pass.
	CheckMutability bool `yaml:"check_mutability"`
	// WarnUnused reports variables that are declared but never read.
	WarnUnused bool `yaml:"warn_unused"`
}

// Default returns the options used when no project file is present.
func Default() Options {
	return Options{
		AutoCast:              true,
		MaxInstantiationDepth: DefaultMaxInstantiationDepth,
	}
}

// Load reads a project file. Fields missing from the file keep their
// default values.
func Load(path string) (Options, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse config %s: %w", path, err)
	}

	if opts.MaxInstantiationDepth <= 0 {
		opts.MaxInstantiationDepth = DefaultMaxInstantiationDepth
	}

	return opts, nil
}

// Validate checks the options against the running compiler version.
func (o Options) Validate(version string) error {
	if o.MaxInstantiationDepth <= 0 {
		return fmt.Errorf("max_instantiation_depth must be positive, got %d", o.MaxInstantiationDepth)
	}

	if o.Compiler == "" {
		return nil
	}

	c, err := semver.NewConstraint(o.Compiler)
	if err != nil {
		return fmt.Errorf("invalid compiler constraint %q: %w", o.Compiler, err)
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid compiler version %q: %w", version, err)
	}

	if !c.Check(v) {
		return fmt.Errorf("compiler version %s does not satisfy %q", v, o.Compiler)
	}

	return nil
}
