package testtarget

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/cs-au-dk/reach/analysis/cfa"
	"github.com/cs-au-dk/reach/analysis/refinement"
)

// TestCase is the serialized form of a generated test.
type TestCase struct {
	Goal     string   `yaml:"goal"`
	Function string   `yaml:"function"`
	Precise  bool     `yaml:"precise"`
	Inputs   []Input  `yaml:"inputs"`
	Path     []string `yaml:"path,omitempty"`
}

// Input is the value of one nondeterministic input, in execution order.
type Input struct {
	Var   string `yaml:"var"`
	Value bool   `yaml:"value"`
	Edge  string `yaml:"edge,omitempty"`
}

// NewTestCase builds the test case reaching goal along a counterexample.
func NewTestCase(goal *cfa.Edge, cex *refinement.Counterexample) TestCase {
	tc := TestCase{
		Goal:     goal.String(),
		Function: goal.From.Function,
		Precise:  cex.Precise,
		Inputs:   []Input{},
	}
	for _, in := range cex.Inputs {
		i := Input{Var: in.Var, Value: in.Value}
		if in.Edge != nil {
			i.Edge = in.Edge.String()
		}
		tc.Inputs = append(tc.Inputs, i)
	}
	for _, e := range cex.Path.Edges {
		if e != nil {
			tc.Path = append(tc.Path, e.String())
		}
	}
	return tc
}

// Writer writes numbered test case files into a directory.
type Writer struct {
	Dir string

	count int
	log   logrus.FieldLogger
}

func NewWriter(dir string, log logrus.FieldLogger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating test case directory %s", dir)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{Dir: dir, log: log}, nil
}

// Count of test cases written.
func (w *Writer) Count() int { return w.count }

func (w *Writer) WriteTestCase(goal *cfa.Edge, cex *refinement.Counterexample) error {
	out, err := yaml.Marshal(NewTestCase(goal, cex))
	if err != nil {
		return errors.Wrap(err, "encoding test case")
	}
	w.count++
	name := filepath.Join(w.Dir, fmt.Sprintf("testcase-%03d.yaml", w.count))
	if err := os.WriteFile(name, out, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", name)
	}
	w.log.WithField("file", name).Debug("Wrote test case")
	return nil
}

// ReadTestCase decodes a test case file.
func ReadTestCase(name string) (TestCase, error) {
	var tc TestCase
	data, err := os.ReadFile(name)
	if err != nil {
		return tc, errors.Wrapf(err, "reading %s", name)
	}
	if err := yaml.Unmarshal(data, &tc); err != nil {
		return tc, errors.Wrapf(err, "decoding %s", name)
	}
	return tc, nil
}
