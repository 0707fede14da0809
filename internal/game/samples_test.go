package game

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedSamplesAreValid(t *testing.T) {
	samples := Samples()
	if len(samples) == 0 {
		t.Fatal("expected embedded samples")
	}

	found := false
	for _, s := range samples {
		if s.ID == DefaultSample {
			found = true
		}
		if _, err := LoadSample(s.ID); err != nil {
			t.Errorf("LoadSample(%q) failed: %v", s.ID, err)
		}
	}
	if !found {
		t.Errorf("default sample %q is not embedded", DefaultSample)
	}
}

func TestLoadSampleRejectsPaths(t *testing.T) {
	for _, id := range []string{"../secret", "a/b", ".hidden", ""} {
		if _, err := LoadSample(id); err == nil {
			t.Errorf("LoadSample(%q) should fail", id)
		}
	}
}

// countingLoader records every requested ID.
type countingLoader struct {
	ok    map[string]Definition
	calls []string
}

func (c *countingLoader) Load(_ context.Context, id string) (Definition, error) {
	c.calls = append(c.calls, id)
	if def, ok := c.ok[id]; ok {
		return def, nil
	}
	return Definition{}, errors.New("not found: " + id)
}

func TestLoadWithFallbackRequested(t *testing.T) {
	l := &countingLoader{ok: map[string]Definition{"snake": {InitCode: "s"}}}

	res, err := LoadWithFallback(context.Background(), l, "snake")
	if err != nil {
		t.Fatalf("LoadWithFallback() failed: %v", err)
	}
	if res.Fallback || res.ID != "snake" || res.Definition.InitCode != "s" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(l.calls) != 1 {
		t.Errorf("expected 1 load, got %v", l.calls)
	}
}

func TestLoadWithFallbackUsesDefaultOnce(t *testing.T) {
	l := &countingLoader{ok: map[string]Definition{DefaultSample: {InitCode: "d"}}}

	res, err := LoadWithFallback(context.Background(), l, "missing")
	if err != nil {
		t.Fatalf("LoadWithFallback() failed: %v", err)
	}
	if !res.Fallback || res.ID != DefaultSample || res.Requested != "missing" {
		t.Errorf("expected fallback to default, got %+v", res)
	}
	if res.Cause == nil {
		t.Error("fallback result should carry the original cause")
	}
	if len(l.calls) != 2 {
		t.Errorf("expected exactly 2 loads, got %v", l.calls)
	}
}

func TestLoadWithFallbackNoChain(t *testing.T) {
	l := &countingLoader{}

	if _, err := LoadWithFallback(context.Background(), l, "missing"); err == nil {
		t.Fatal("expected error when both loads fail")
	}
	if len(l.calls) != 2 {
		t.Errorf("expected exactly 2 loads, got %v", l.calls)
	}

	l.calls = nil
	if _, err := LoadWithFallback(context.Background(), l, ""); err == nil {
		t.Fatal("expected error when the default fails")
	}
	if len(l.calls) != 1 {
		t.Errorf("default failure must not retry, got %v", l.calls)
	}
}

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFile(filepath.Join(dir, "custom.json"), Definition{InitCode: "c", UpdateCode: ""}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	l := DirLoader{Root: dir}
	def, err := l.Load(context.Background(), "custom")
	if err != nil {
		t.Fatalf("Load(custom) failed: %v", err)
	}
	if def.InitCode != "c" {
		t.Errorf("Load(custom) = %+v", def)
	}

	// Embedded samples are still reachable
	if _, err := l.Load(context.Background(), DefaultSample); err != nil {
		t.Errorf("Load(default) failed: %v", err)
	}

	ids := make(map[string]bool)
	for _, s := range l.List() {
		ids[s.ID] = true
	}
	if !ids["custom"] || !ids[DefaultSample] {
		t.Errorf("List() = %v, expected custom and default", ids)
	}
	if ids["broken"] {
		t.Error("List() should skip invalid files")
	}
}

func TestHTTPLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/samples/ok.json":
			w.Write([]byte(`{"initCode": "i", "updateCode": "u"}`))
		case "/samples/bad.json":
			w.Write([]byte(`{not json`))
		case "/samples/huge.json":
			w.Write([]byte(`{"initCode": "` + strings.Repeat(" ", maxDefinitionSize) + `", "updateCode": ""}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := HTTPLoader{BaseURL: srv.URL + "/samples", Client: srv.Client()}

	def, err := l.Load(context.Background(), "ok")
	if err != nil {
		t.Fatalf("Load(ok) failed: %v", err)
	}
	if def.UpdateCode != "u" {
		t.Errorf("Load(ok) = %+v", def)
	}

	if _, err := l.Load(context.Background(), "bad"); !errors.Is(err, ErrDefinitionFormat) {
		t.Errorf("Load(bad) should be a format error, got %v", err)
	}

	_, err = l.Load(context.Background(), "huge")
	if !errors.Is(err, ErrDefinitionFormat) || !strings.Contains(err.Error(), "too large") {
		t.Errorf("Load(huge) error = %v, expected a size error", err)
	}

	if _, err := l.Load(context.Background(), "missing"); err == nil {
		t.Error("Load(missing) should fail on 404")
	}
}
