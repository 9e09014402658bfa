// Package suite loads TestSuite descriptor files. A suite file names the
// suite, optional per-case defaults, and the ordered list of test cases with
// their dependency hints.
package suite

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/testforge/test-orchestrator/types"
)

// duration decodes YAML durations written as strings ("30s", "2m").
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

type defaultsSpec struct {
	Timeout    duration `yaml:"timeout,omitempty"`
	Complexity float64  `yaml:"complexity,omitempty"`
}

type caseSpec struct {
	ID         string   `yaml:"id"`
	Source     string   `yaml:"source,omitempty"`
	Complexity float64  `yaml:"complexity,omitempty"`
	Timeout    duration `yaml:"timeout,omitempty"`
	DependsOn  []string `yaml:"depends_on,omitempty"`
}

type fileSpec struct {
	Name     string       `yaml:"name"`
	Defaults defaultsSpec `yaml:"defaults,omitempty"`
	Tests    []caseSpec   `yaml:"tests"`
}

// Load reads and validates a suite descriptor file. Dependency ids are only
// shape-checked here; graph construction performs the full cycle and
// existence validation.
func Load(path string, logger log.Logger) (*types.TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read suite file %q", path)
	}
	return Parse(data, logger)
}

// Parse decodes suite descriptor bytes into a TestSuite, applying suite-level
// defaults to cases that leave a field unset.
func Parse(data []byte, logger log.Logger) (*types.TestSuite, error) {
	var f fileSpec
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse suite file")
	}
	if f.Name == "" {
		return nil, errors.New("suite file is missing a name")
	}
	if len(f.Tests) == 0 {
		return nil, errors.Errorf("suite %q contains no tests", f.Name)
	}

	seen := make(map[string]struct{}, len(f.Tests))
	cases := make([]types.TestCase, 0, len(f.Tests))
	for i, spec := range f.Tests {
		if spec.ID == "" {
			return nil, errors.Errorf("suite %q: test at position %d has an empty id", f.Name, i)
		}
		if _, dup := seen[spec.ID]; dup {
			return nil, errors.Errorf("suite %q: duplicate test id %q", f.Name, spec.ID)
		}
		seen[spec.ID] = struct{}{}

		tc := types.TestCase{
			ID:         spec.ID,
			Source:     spec.Source,
			Complexity: spec.Complexity,
			Timeout:    time.Duration(spec.Timeout),
			DependsOn:  spec.DependsOn,
		}
		if tc.Timeout < 0 {
			return nil, errors.Errorf("suite %q: test %q has a negative timeout", f.Name, tc.ID)
		}
		if tc.Timeout == 0 {
			tc.Timeout = time.Duration(f.Defaults.Timeout)
		}
		if tc.Complexity == 0 {
			tc.Complexity = f.Defaults.Complexity
		}
		cases = append(cases, tc)
	}

	logger.Debug("Suite loaded", "suite", f.Name, "tests", len(cases))
	return &types.TestSuite{Name: f.Name, Cases: cases}, nil
}
