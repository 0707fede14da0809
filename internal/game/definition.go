// Package game defines the exchanged game definition format and the loaders
// that produce definitions from files, HTTP and the embedded sample set.
package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"
	"unicode/utf8"
)

// ExportFilename is the conventional name of an exported definition.
const ExportFilename = "game-code.json"

// DefaultDisplayMode is written to exports that carry no display mode.
const DefaultDisplayMode = "1"

// ErrDefinitionFormat matches every error caused by a malformed definition.
var ErrDefinitionFormat = errors.New("invalid game definition")

// Definition is a runnable mini-game: init source run once, update source
// run every tick. Controllers treat it as read-only.
type Definition struct {
	InitCode    string `json:"initCode"`
	UpdateCode  string `json:"updateCode"`
	DisplayMode string `json:"displayMode,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Engine      string `json:"engine,omitempty"` // Script engine name; empty means the host default
}

// FormatError describes why a definition was rejected.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid game file format: %s: %v", e.Reason, e.Err)
	}
	return "invalid game file format: " + e.Reason
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDefinitionFormat) true for every FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrDefinitionFormat
}

var engineNameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Parse decodes and validates a definition.
// Both code fields must be present as JSON strings; empty strings are fine.
func Parse(data []byte) (Definition, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Definition{}, &FormatError{Reason: "expected a JSON object", Err: err}
		}
		return Definition{}, &FormatError{Reason: "not valid JSON", Err: err}
	}
	if raw == nil {
		return Definition{}, &FormatError{Reason: "expected a JSON object"}
	}

	var def Definition
	var err error
	if def.InitCode, err = requiredString(raw, "initCode"); err != nil {
		return Definition{}, err
	}
	if def.UpdateCode, err = requiredString(raw, "updateCode"); err != nil {
		return Definition{}, err
	}
	if def.DisplayMode, err = optionalString(raw, "displayMode"); err != nil {
		return Definition{}, err
	}
	if def.Timestamp, err = optionalString(raw, "timestamp"); err != nil {
		return Definition{}, err
	}
	if def.Engine, err = optionalString(raw, "engine"); err != nil {
		return Definition{}, err
	}

	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func requiredString(raw map[string]json.RawMessage, field string) (string, error) {
	v, ok := raw[field]
	if !ok || isNull(v) {
		return "", &FormatError{Reason: "missing " + field}
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &FormatError{Reason: field + " must be a string"}
	}
	return s, nil
}

func optionalString(raw map[string]json.RawMessage, field string) (string, error) {
	v, ok := raw[field]
	if !ok || isNull(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &FormatError{Reason: field + " must be a string"}
	}
	return s, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// Validate checks the parts of a definition that survive decoding:
// code must be valid UTF-8 and the engine name, when set, well-formed.
func (d *Definition) Validate() error {
	if d == nil {
		return &FormatError{Reason: "no definition"}
	}
	if !utf8.ValidString(d.InitCode) {
		return &FormatError{Reason: "initCode is not valid UTF-8"}
	}
	if !utf8.ValidString(d.UpdateCode) {
		return &FormatError{Reason: "updateCode is not valid UTF-8"}
	}
	if d.Engine != "" && !engineNameRe.MatchString(d.Engine) {
		return &FormatError{Reason: fmt.Sprintf("bad engine name %q", d.Engine)}
	}
	return nil
}

// EngineOr returns the definition's engine, or fallback when unset.
func (d *Definition) EngineOr(fallback string) string {
	if d.Engine != "" {
		return d.Engine
	}
	return fallback
}

// Export builds a definition from editor fields, stamped with now.
func Export(initCode, updateCode, displayMode string, now time.Time) Definition {
	return Definition{
		InitCode:    initCode,
		UpdateCode:  updateCode,
		DisplayMode: displayMode,
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
	}
}

// Marshal encodes a definition as indented JSON, the exported file format.
func Marshal(def Definition) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(def); err != nil {
		return nil, fmt.Errorf("game: cannot encode definition: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadFile reads and parses a definition file.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("game: cannot read %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// WriteFile marshals def to path.
func WriteFile(path string, def Definition) error {
	data, err := Marshal(def)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("game: cannot write %s: %w", path, err)
	}
	return nil
}
