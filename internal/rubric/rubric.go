// Package rubric loads and validates the ordered list of evaluation
// dimensions an audit is scored against.
package rubric

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"auditor/internal/audit"
)

//go:embed default.yaml
var defaultRubric []byte

var (
	ErrEmptyRubric    = errors.New("rubric: no dimensions")
	ErrMissingID      = errors.New("rubric: dimension without id")
	ErrDuplicateID    = errors.New("rubric: duplicate dimension id")
	ErrReservedID     = errors.New("rubric: reserved dimension id")
	ErrPaddedID       = errors.New("rubric: dimension id has surrounding whitespace")
	ErrUnknownTarget  = errors.New("rubric: unknown target artifact")
	ErrUnknownVersion = errors.New("rubric: unsupported version")
)

// Rubric is a validated, ordered set of dimensions.
type Rubric struct {
	Version    string            `json:"version,omitempty" yaml:"version,omitempty"`
	Dimensions []audit.Dimension `json:"dimensions" yaml:"dimensions"`
	Source     string            `json:"-" yaml:"-"`
}

// rawDimension also accepts the older forensic_instruction key.
type rawDimension struct {
	audit.Dimension     `yaml:",inline"`
	ForensicInstruction string `json:"forensic_instruction" yaml:"forensic_instruction"`
}

type rawRubric struct {
	Version    string         `json:"version" yaml:"version"`
	Dimensions []rawDimension `json:"dimensions" yaml:"dimensions"`
}

// Default returns the built-in rubric.
func Default() (*Rubric, error) {
	r, err := Load(defaultRubric, ".yaml")
	if err != nil {
		return nil, fmt.Errorf("default rubric: %w", err)
	}
	r.Source = "builtin"
	return r, nil
}

// LoadFromPath reads a rubric file (YAML or JSON). An empty path selects
// the built-in rubric.
func LoadFromPath(path string) (*Rubric, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}
	r, err := Load(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	r.Source = path
	return r, nil
}

// Load parses and validates a rubric. ext selects the format; when empty
// the format is detected from content.
func Load(data []byte, ext string) (*Rubric, error) {
	var raw rawRubric
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse rubric json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse rubric yaml: %w", err)
		}
	default:
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			return Load(data, ".json")
		}
		return Load(data, ".yaml")
	}

	r := &Rubric{Version: raw.Version}
	for _, d := range raw.Dimensions {
		dim := d.Dimension
		dim.ID = strings.TrimSpace(dim.ID)
		if dim.Instruction == "" {
			dim.Instruction = d.ForensicInstruction
		}
		r.Dimensions = append(r.Dimensions, dim)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that the rubric is usable: at least one dimension, every
// id present and unique, every target artifact known.
func (r *Rubric) Validate() error {
	if r.Version != "" && r.Version != "1" {
		return fmt.Errorf("%w: %q", ErrUnknownVersion, r.Version)
	}
	if len(r.Dimensions) == 0 {
		return ErrEmptyRubric
	}
	seen := make(map[string]int, len(r.Dimensions))
	for i, d := range r.Dimensions {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return fmt.Errorf("%w: position %d", ErrMissingID, i)
		}
		if id != d.ID {
			return fmt.Errorf("%w: %q at position %d", ErrPaddedID, d.ID, i)
		}
		if audit.IsSentinelKey(id) {
			return fmt.Errorf("%w: %q", ErrReservedID, id)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("%w: %q at positions %d and %d", ErrDuplicateID, id, prev, i)
		}
		seen[id] = i
		switch d.TargetArtifact {
		case audit.ArtifactRepo, audit.ArtifactDocReport, audit.ArtifactDocImages:
		default:
			return fmt.Errorf("%w: %q on dimension %q", ErrUnknownTarget, d.TargetArtifact, id)
		}
	}
	return nil
}

// Ordered returns a copy of the dimensions in rubric order.
func (r *Rubric) Ordered() []audit.Dimension {
	out := make([]audit.Dimension, len(r.Dimensions))
	copy(out, r.Dimensions)
	return out
}

// Lookup returns the dimension with the given id.
func (r *Rubric) Lookup(id string) (audit.Dimension, bool) {
	for _, d := range r.Dimensions {
		if d.ID == id {
			return d, true
		}
	}
	return audit.Dimension{}, false
}

// CountByTarget returns how many dimensions target each artifact.
func (r *Rubric) CountByTarget() map[audit.ArtifactTag]int {
	out := make(map[audit.ArtifactTag]int)
	for _, d := range r.Dimensions {
		out[d.TargetArtifact]++
	}
	return out
}

// Provider supplies the rubric at the start of a run.
type Provider interface {
	Load() ([]audit.Dimension, error)
}

// File is a Provider that reads a rubric path on every Load. An empty
// path selects the built-in rubric.
type File string

// Load implements Provider.
func (f File) Load() ([]audit.Dimension, error) {
	r, err := LoadFromPath(string(f))
	if err != nil {
		return nil, err
	}
	return r.Ordered(), nil
}

// Static is a Provider over an already loaded rubric.
type Static struct{ Rubric *Rubric }

// Load implements Provider.
func (s Static) Load() ([]audit.Dimension, error) {
	if s.Rubric == nil {
		return nil, ErrEmptyRubric
	}
	if err := s.Rubric.Validate(); err != nil {
		return nil, err
	}
	return s.Rubric.Ordered(), nil
}
