// Package script loads YAML job scripts and runs them through a delay engine.
//
// A script is an ordered list of steps. Each step becomes one job, submitted
// in file order; steps with a delay join the run queue only once it has
// elapsed. The resulting Report records how every job ended and the order in
// which jobs actually started.
package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScript indicates a script failed to parse or validate.
var ErrInvalidScript = errors.New("invalid script")

var validate = validator.New()

// Script is a named list of steps.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// Step describes one job.
type Step struct {
	Name string `validate:"required,max=64"`

	// Delay before the job joins the run queue.
	Delay time.Duration `validate:"gte=0"`
	// Sleep simulates work; it returns early if the job is canceled.
	Sleep time.Duration `validate:"gte=0"`
	// CancelAfter cancels the job's context this long after submission.
	CancelAfter time.Duration `validate:"gte=0"`

	Fail  string // non-empty makes the job return this error
	Panic bool

	delaySet bool
}

type rawStep struct {
	Name        string `yaml:"name"`
	Delay       any    `yaml:"delay"`
	Sleep       any    `yaml:"sleep"`
	CancelAfter any    `yaml:"cancel_after"`
	Fail        string `yaml:"fail"`
	Panic       bool   `yaml:"panic"`
}

// stepFields are the keys a step mapping may contain. node.Decode does not
// inherit the parent decoder's KnownFields setting, so unknown keys are
// rejected here.
var stepFields = map[string]struct{}{
	"name":         {},
	"delay":        {},
	"sleep":        {},
	"cancel_after": {},
	"fail":         {},
	"panic":        {},
}

// UnmarshalYAML accepts durations either as Go duration strings ("250ms") or
// as bare numbers of milliseconds.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if _, ok := stepFields[key.Value]; !ok {
				return fmt.Errorf("line %d: unknown step field %q", key.Line, key.Value)
			}
		}
	}

	var raw rawStep
	if err := node.Decode(&raw); err != nil {
		return err
	}

	var err error
	if s.Delay, err = toDuration(raw.Delay); err != nil {
		return fmt.Errorf("step %q: delay: %w", raw.Name, err)
	}
	if s.Sleep, err = toDuration(raw.Sleep); err != nil {
		return fmt.Errorf("step %q: sleep: %w", raw.Name, err)
	}
	if s.CancelAfter, err = toDuration(raw.CancelAfter); err != nil {
		return fmt.Errorf("step %q: cancel_after: %w", raw.Name, err)
	}
	s.Name = raw.Name
	s.Fail = raw.Fail
	s.Panic = raw.Panic
	s.delaySet = raw.Delay != nil
	return nil
}

func toDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		val = strings.TrimSpace(val)
		if ms, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(ms * float64(time.Millisecond)), nil
		}
		return cast.ToDurationE(val)
	default:
		ms, err := cast.ToFloat64E(val)
		if err != nil {
			return 0, err
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
}

// Parse reads and validates a script.
func Parse(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScript)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a script from path. A script without a name is named after the file.
func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return s, nil
}

// Validate checks field constraints and step name uniqueness.
func (s *Script) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidScript, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}

	seen := make(map[string]struct{}, len(s.Steps))
	for _, st := range s.Steps {
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("%w: duplicate step name %q", ErrInvalidScript, st.Name)
		}
		seen[st.Name] = struct{}{}
	}
	return nil
}
