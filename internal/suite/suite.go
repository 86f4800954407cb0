// Package suite runs a list of conformance checks described in a YAML file.
//
// # Suite Format
//
//	name: nestest
//	emulator: ./build/nes_test_runner   # default for every case
//	timeout: 30s                         # default for every case
//	jobs: 2                              # cases run in parallel
//	env: { NES_HEADLESS: "1" }
//	cases:
//	  - name: official
//	    rom: roms/nestest.nes
//	    reference: logs/nestest.log
//	  - name: unofficial
//	    rom: roms/nestest.nes
//	    reference: logs/nestest-full.log
//	    timeout: 2m
//	    emulator: ./build/runner_unofficial
//
// Files are checked against an embedded CUE schema before they are decoded,
// so unknown keys, malformed durations and missing fields are reported with
// their path. Relative rom, reference and emulator paths resolve against the
// suite file's directory; an emulator given as a bare name is looked up on
// PATH.
package suite

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tracediff/internal/harness"
)

//go:embed schema.cue
var schemaSource string

// Suite is a named list of cases.
type Suite struct {
	Name     string            `yaml:"name"`
	Emulator string            `yaml:"emulator,omitempty"`
	Timeout  Duration          `yaml:"timeout,omitempty"`
	Jobs     int               `yaml:"jobs,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Cases    []Case            `yaml:"cases"`
}

// Case is one emulator run compared against one reference trace.
type Case struct {
	Name      string            `yaml:"name"`
	ROM       string            `yaml:"rom"`
	Reference string            `yaml:"reference"`
	Emulator  string            `yaml:"emulator,omitempty"`
	Timeout   Duration          `yaml:"timeout,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// Duration is a time.Duration written as "30s", "2m" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Load reads, validates and decodes a suite file.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("invalid suite %s: %w", path, err)
	}

	var s Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := s.check(); err != nil {
		return nil, fmt.Errorf("invalid suite %s: %w", path, err)
	}

	s.resolve(filepath.Dir(path))
	return &s, nil
}

// validate checks raw against #Suite.
func validate(raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode suite: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Suite")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// check enforces what the schema cannot express.
func (s *Suite) check() error {
	seen := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if seen[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate case name %q", i, c.Name)
		}
		seen[c.Name] = true

		if c.Emulator == "" && s.Emulator == "" {
			return fmt.Errorf("cases[%d]: %s: no emulator set on the case or the suite", i, c.Name)
		}
	}
	return nil
}

func (s *Suite) resolve(dir string) {
	s.Emulator = resolveExecutable(dir, s.Emulator)
	for i := range s.Cases {
		c := &s.Cases[i]
		c.ROM = resolveFile(dir, c.ROM)
		c.Reference = resolveFile(dir, c.Reference)
		c.Emulator = resolveExecutable(dir, c.Emulator)
	}
}

func resolveFile(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// resolveExecutable leaves bare command names alone so exec finds them on
// PATH.
func resolveExecutable(dir, path string) string {
	if !strings.ContainsRune(path, '/') && !strings.ContainsRune(path, filepath.Separator) {
		return path
	}
	return resolveFile(dir, path)
}

// Filter returns a copy of the suite holding only the cases whose name
// matches the glob pattern. An empty pattern keeps every case.
func (s *Suite) Filter(pattern string) (*Suite, error) {
	out := *s
	if pattern == "" {
		return &out, nil
	}
	out.Cases = nil
	for _, c := range s.Cases {
		matched, err := filepath.Match(pattern, c.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out.Cases = append(out.Cases, c)
		}
	}
	return &out, nil
}

// Config builds the harness configuration of one case, applying suite
// defaults.
func (s *Suite) Config(c Case) harness.Config {
	cfg := harness.Config{
		Emulator:  c.Emulator,
		ROM:       c.ROM,
		Reference: c.Reference,
		Timeout:   time.Duration(c.Timeout),
	}
	if cfg.Emulator == "" {
		cfg.Emulator = s.Emulator
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Duration(s.Timeout)
	}

	env := make(map[string]string, len(s.Env)+len(c.Env))
	for k, v := range s.Env {
		env[k] = v
	}
	for k, v := range c.Env {
		env[k] = v
	}
	for k, v := range env {
		cfg.Env = append(cfg.Env, k+"="+v)
	}
	sort.Strings(cfg.Env)

	return cfg
}
