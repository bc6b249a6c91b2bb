// Package workflow reads and writes recorded workflow files.
//
// Two layouts are accepted on input: a workflow object ({"id": ..., "steps": [...]})
// and a bare array of steps. Output is always the object form.
package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyInput is returned when the input holds no JSON document at all.
var ErrEmptyInput = errors.New("workflow input is empty")

// Load reads a workflow file. The path may start with ~. A path of "-"
// reads from stdin.
func Load(path string) (*schemas.Workflow, error) {
	if path == "-" {
		return Decode(os.Stdin)
	}
	resolved, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve workflow path '%s': %w", path, err)
	}
	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to open workflow file: %w", err)
	}
	defer f.Close()

	wf, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow file '%s': %w", resolved, err)
	}
	return wf, nil
}

// Decode parses a workflow document from r.
func Decode(r io.Reader) (*schemas.Workflow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	if data[0] == '[' {
		var steps []schemas.WorkflowStep
		if err := json.Unmarshal(data, &steps); err != nil {
			return nil, err
		}
		return &schemas.Workflow{Steps: steps}, nil
	}

	var wf schemas.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, err
	}
	if wf.Steps == nil {
		return nil, errors.New("workflow document has no \"steps\" array")
	}
	return &wf, nil
}

// Save writes wf to path, creating parent directories as needed. A path of
// "-" or "" writes to stdout.
func Save(path string, wf *schemas.Workflow) error {
	if path == "" || path == "-" {
		return Encode(os.Stdout, wf)
	}
	resolved, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("could not resolve output path '%s': %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, wf); err != nil {
		return err
	}
	// The target is replaced only after a complete write.
	tmp := resolved + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write workflow file: %w", err)
	}
	if err := os.Rename(tmp, resolved); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move workflow file into place: %w", err)
	}
	return nil
}

// Encode writes wf as indented JSON.
func Encode(w io.Writer, wf *schemas.Workflow) error {
	if wf.Steps == nil {
		wf = &schemas.Workflow{ID: wf.ID, Name: wf.Name, Steps: []schemas.WorkflowStep{}}
	}
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workflow: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
