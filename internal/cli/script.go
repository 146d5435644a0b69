package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbm367/syft/internal/presentation/graph"
	"github.com/sbm367/syft/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Script is a batch of tensor commands run against a client.
type Script struct {
	Tensors    []TensorSpec    `yaml:"tensors" json:"tensors"`
	Operations []OperationSpec `yaml:"operations" json:"operations"`
	Remove     []string        `yaml:"remove" json:"remove"`
}

// TensorSpec declares a tensor. Values are nested lists, or a flat list
// combined with Shape.
type TensorSpec struct {
	ID     string `yaml:"id" json:"id"`
	Shape  []int  `yaml:"shape,omitempty" json:"shape,omitempty"`
	Values any    `yaml:"values" json:"values"`
}

// OperationSpec runs Func over Operands, storing the result under Into when
// set.
type OperationSpec struct {
	Func     string   `yaml:"func" json:"func"`
	Operands []string `yaml:"operands" json:"operands"`
	Into     string   `yaml:"into,omitempty" json:"into,omitempty"`
}

// Payload converts the declaration to its wire form.
func (t TensorSpec) Payload() domain.TensorPayload {
	return domain.TensorPayload{ID: t.ID, Shape: t.Shape, Values: t.Values}
}

// LoadScript reads a script from a YAML or JSON file, chosen by extension.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data, filepath.Ext(path))
}

// ParseScript decodes a script. ext selects the format (".json", or YAML for
// anything else).
func ParseScript(data []byte, ext string) (Script, error) {
	var s Script
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &s); err != nil {
			return Script{}, fmt.Errorf("failed to parse JSON script: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Script{}, fmt.Errorf("failed to parse YAML script: %w", err)
		}
	}
	return s, s.Validate()
}

// Validate checks that every step names what it acts on.
func (s Script) Validate() error {
	for i, t := range s.Tensors {
		if t.ID == "" {
			return fmt.Errorf("tensor #%d: missing id", i+1)
		}
		if t.Values == nil {
			return fmt.Errorf("tensor %s: missing values", t.ID)
		}
	}
	for i, op := range s.Operations {
		if op.Func == "" {
			return fmt.Errorf("operation #%d: missing func", i+1)
		}
		if len(op.Operands) == 0 {
			return fmt.Errorf("operation %s: no operands", op.Func)
		}
	}
	for i, id := range s.Remove {
		if id == "" {
			return fmt.Errorf("remove #%d: empty id", i+1)
		}
	}
	return nil
}

// Mermaid renders the script dataflow. A failed step, when known, is
// highlighted.
func (s Script) Mermaid(failed string) string {
	tensors := make([]string, 0, len(s.Tensors))
	for _, t := range s.Tensors {
		tensors = append(tensors, t.ID)
	}
	ops := make([]graph.Operation, 0, len(s.Operations))
	for _, op := range s.Operations {
		ops = append(ops, graph.Operation{Func: op.Func, Operands: op.Operands, Into: op.Into})
	}
	var overlay *graph.Overlay
	if len(s.Remove) > 0 || failed != "" {
		overlay = &graph.Overlay{Removed: s.Remove, Failed: failed}
	}
	return graph.GenerateMermaid(tensors, ops, overlay)
}
