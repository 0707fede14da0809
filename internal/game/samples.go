package game

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSample is loaded when no sample is requested, and is the single
// fallback when a requested sample cannot be loaded.
const DefaultSample = "sample-game"

// maxDefinitionSize bounds how much is read from a file or HTTP response.
const maxDefinitionSize = 1 << 20

//go:embed samples/*.json
var embeddedSamples embed.FS

// SampleInfo describes an available sample definition.
type SampleInfo struct {
	ID     string
	Engine string
}

// Loader loads a definition by sample ID.
type Loader interface {
	Load(ctx context.Context, id string) (Definition, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, id string) (Definition, error)

// Load calls f(ctx, id).
func (f LoaderFunc) Load(ctx context.Context, id string) (Definition, error) {
	return f(ctx, id)
}

// LoadResult reports which sample was actually loaded.
type LoadResult struct {
	Definition Definition
	ID         string // ID of the loaded sample
	Requested  string // ID that was asked for
	Fallback   bool   // True when Requested failed and DefaultSample was used
	Cause      error  // Why Requested failed, when Fallback is set
}

// LoadWithFallback loads id, or DefaultSample when id is empty. If a specific
// sample fails, DefaultSample is tried exactly once; there is no further
// fallback chain.
func LoadWithFallback(ctx context.Context, l Loader, id string) (LoadResult, error) {
	if id == "" {
		id = DefaultSample
	}

	def, err := l.Load(ctx, id)
	if err == nil {
		return LoadResult{Definition: def, ID: id, Requested: id}, nil
	}
	if id == DefaultSample {
		return LoadResult{Requested: id}, err
	}

	def, fbErr := l.Load(ctx, DefaultSample)
	if fbErr != nil {
		return LoadResult{Requested: id}, errors.Join(err, fbErr)
	}
	return LoadResult{
		Definition: def,
		ID:         DefaultSample,
		Requested:  id,
		Fallback:   true,
		Cause:      err,
	}, nil
}

// validSampleID rejects IDs that could escape a samples directory.
func validSampleID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("game: invalid sample id %q", id)
	}
	return nil
}

// Samples lists the embedded samples sorted by ID.
func Samples() []SampleInfo {
	infos, _ := listSamples(embeddedSamples, "samples")
	return infos
}

func listSamples(fsys fs.FS, dir string) ([]SampleInfo, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var infos []SampleInfo
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		def, err := Parse(data)
		if err != nil {
			// Skip invalid files
			continue
		}
		infos = append(infos, SampleInfo{
			ID:     strings.TrimSuffix(e.Name(), ".json"),
			Engine: def.Engine,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

// LoadSample loads an embedded sample by ID.
func LoadSample(id string) (Definition, error) {
	if err := validSampleID(id); err != nil {
		return Definition{}, err
	}
	data, err := embeddedSamples.ReadFile("samples/" + id + ".json")
	if err != nil {
		return Definition{}, fmt.Errorf("game: unknown sample %q", id)
	}
	return Parse(data)
}

// SampleJSON returns the raw bytes of an embedded sample.
func SampleJSON(id string) ([]byte, error) {
	if err := validSampleID(id); err != nil {
		return nil, err
	}
	data, err := embeddedSamples.ReadFile("samples/" + id + ".json")
	if err != nil {
		return nil, fmt.Errorf("game: unknown sample %q", id)
	}
	return data, nil
}

// EmbeddedLoader loads samples compiled into the binary.
type EmbeddedLoader struct{}

// Load implements Loader.
func (EmbeddedLoader) Load(_ context.Context, id string) (Definition, error) {
	return LoadSample(id)
}

// DirLoader loads "<Root>/<id>.json", falling back to the embedded set when
// the directory has no such file.
type DirLoader struct {
	Root string
}

// Load implements Loader.
func (d DirLoader) Load(ctx context.Context, id string) (Definition, error) {
	if err := validSampleID(id); err != nil {
		return Definition{}, err
	}
	if d.Root != "" {
		p := filepath.Join(d.Root, id+".json")
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return EmbeddedLoader{}.Load(ctx, id)
}

// List returns samples from Root merged with the embedded set.
// Root entries shadow embedded ones with the same ID.
func (d DirLoader) List() []SampleInfo {
	byID := make(map[string]SampleInfo)
	for _, s := range Samples() {
		byID[s.ID] = s
	}
	if d.Root != "" {
		if infos, err := listSamples(os.DirFS(d.Root), "."); err == nil {
			for _, s := range infos {
				byID[s.ID] = s
			}
		}
	}

	out := make([]SampleInfo, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// HTTPLoader fetches "<BaseURL>/<id>.json".
type HTTPLoader struct {
	BaseURL string
	Client  *http.Client
}

// Load implements Loader.
func (h HTTPLoader) Load(ctx context.Context, id string) (Definition, error) {
	if err := validSampleID(id); err != nil {
		return Definition{}, err
	}
	u, err := url.JoinPath(h.BaseURL, id+".json")
	if err != nil {
		return Definition{}, fmt.Errorf("game: bad sample url: %w", err)
	}
	return Fetch(ctx, h.Client, u)
}

// Fetch downloads and parses a definition. Responses are never cached.
func Fetch(ctx context.Context, client *http.Client, rawURL string) (Definition, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Definition{}, fmt.Errorf("game: cannot build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := client.Do(req)
	if err != nil {
		return Definition{}, fmt.Errorf("game: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Definition{}, fmt.Errorf("game: fetch %s: %s", rawURL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDefinitionSize+1))
	if err != nil {
		return Definition{}, fmt.Errorf("game: fetch %s: %w", rawURL, err)
	}
	if len(data) > maxDefinitionSize {
		return Definition{}, &FormatError{Reason: fmt.Sprintf("definition too large (over %d bytes)", maxDefinitionSize)}
	}
	return Parse(data)
}
