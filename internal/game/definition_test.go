package game

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseValid(t *testing.T) {
	def, err := Parse([]byte(`{"initCode": "a", "updateCode": "b", "displayMode": "1", "timestamp": "2025-01-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if def.InitCode != "a" || def.UpdateCode != "b" {
		t.Errorf("Parse() = %+v, expected init a / update b", def)
	}
	if def.DisplayMode != "1" {
		t.Errorf("DisplayMode = %q, expected 1", def.DisplayMode)
	}
}

func TestParseEmptyCodeAccepted(t *testing.T) {
	def, err := Parse([]byte(`{"initCode": "", "updateCode": ""}`))
	if err != nil {
		t.Fatalf("empty code strings should be accepted: %v", err)
	}
	if def.InitCode != "" || def.UpdateCode != "" {
		t.Errorf("Parse() = %+v, expected empty code", def)
	}
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	if err == nil {
		t.Fatal("Parse() should fail on malformed JSON")
	}
	if !errors.Is(err, ErrDefinitionFormat) {
		t.Errorf("expected ErrDefinitionFormat, got %v", err)
	}
}

func TestParseNonObject(t *testing.T) {
	for _, input := range []string{`[]`, `"x"`, `42`} {
		_, err := Parse([]byte(input))
		if !errors.Is(err, ErrDefinitionFormat) {
			t.Errorf("Parse(%s) error = %v, expected ErrDefinitionFormat", input, err)
			continue
		}
		if !strings.Contains(err.Error(), "expected a JSON object") {
			t.Errorf("Parse(%s) error = %q, expected a JSON object message", input, err)
		}
	}
}

func TestParseMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing updateCode", `{"initCode": "x = 1;"}`},
		{"missing initCode", `{"updateCode": "x++;"}`},
		{"null updateCode", `{"initCode": "", "updateCode": null}`},
		{"numeric initCode", `{"initCode": 5, "updateCode": ""}`},
		{"json null", `null`},
		{"array", `[]`},
		{"numeric displayMode", `{"initCode": "", "updateCode": "", "displayMode": 1}`},
		{"bad engine", `{"initCode": "", "updateCode": "", "engine": "Lua 5.4"}`},
	}

	for _, tt := range tests {
		_, err := Parse([]byte(tt.input))
		if err == nil {
			t.Errorf("%s: Parse() should fail", tt.name)
			continue
		}
		if !errors.Is(err, ErrDefinitionFormat) {
			t.Errorf("%s: expected ErrDefinitionFormat, got %v", tt.name, err)
		}
	}
}

func TestMissingUpdateCodeMessage(t *testing.T) {
	_, err := Parse([]byte(`{"initCode": ""}`))
	if err == nil || !strings.Contains(err.Error(), "updateCode") {
		t.Errorf("error should name the missing field, got %v", err)
	}
}

func TestExportRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	def := Export("a", "b", "1", now)

	if def.Timestamp != "2025-03-04T05:06:07Z" {
		t.Errorf("Timestamp = %q, expected RFC3339", def.Timestamp)
	}

	data, err := Marshal(def)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() of exported data failed: %v", err)
	}
	if got.InitCode != "a" || got.UpdateCode != "b" {
		t.Errorf("round trip = %+v, expected init a / update b", got)
	}
}

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	data, err := Marshal(Definition{InitCode: "if (a < b && c > d) {}", UpdateCode: ""})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if !strings.Contains(string(data), "a < b && c > d") {
		t.Errorf("Marshal() should keep code readable, got %s", data)
	}
}

func TestWriteAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ExportFilename)
	if err := WriteFile(path, Definition{InitCode: "i", UpdateCode: "u"}); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	def, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if def.InitCode != "i" || def.UpdateCode != "u" {
		t.Errorf("LoadFile() = %+v", def)
	}
}

func TestLoadFileFormatError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(path)
	if !errors.Is(err, ErrDefinitionFormat) {
		t.Errorf("expected ErrDefinitionFormat, got %v", err)
	}
}

func TestValidateNil(t *testing.T) {
	var def *Definition
	if err := def.Validate(); !errors.Is(err, ErrDefinitionFormat) {
		t.Errorf("nil definition should be a format error, got %v", err)
	}
}

func TestEngineOr(t *testing.T) {
	def := Definition{}
	if def.EngineOr("js") != "js" {
		t.Error("empty engine should use the fallback")
	}
	def.Engine = "starlark"
	if def.EngineOr("js") != "starlark" {
		t.Error("explicit engine should win over the fallback")
	}
}
