// Package aimodel provisions the sentence-embedding model used by analytics.
// A model is fetched once into a staging directory and renamed into place,
// so readers only ever see a complete copy.
package aimodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"wbpmisueso/internal/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ReadyFile marks a committed model directory and holds its manifest.
const ReadyFile = ".ready"

// DefaultFiles is the file set of a sentence-transformers model repository.
var DefaultFiles = []string{
	"config.json",
	"config_sentence_transformers.json",
	"modules.json",
	"sentence_bert_config.json",
	"special_tokens_map.json",
	"tokenizer.json",
	"tokenizer_config.json",
	"vocab.txt",
	"model.safetensors",
	"1_Pooling/config.json",
}

var ErrModelFetch = errors.New("model fetch failed")

// ModelFetchError reports which model and file could not be provisioned.
// It blocks analytics but never the rest of the system.
type ModelFetchError struct {
	Model string
	File  string
	Err   error
}

func (e *ModelFetchError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("fetch model %s: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("fetch model %s file %s: %v", e.Model, e.File, e.Err)
}

func (e *ModelFetchError) Unwrap() []error { return []error{ErrModelFetch, e.Err} }

type Manifest struct {
	Name      string           `json:"name"`
	Org       string           `json:"org"`
	Source    string           `json:"source"`
	Files     map[string]int64 `json:"files"`
	FetchedAt time.Time        `json:"fetched_at"`
}

type Options struct {
	BaseURL     string
	Org         string
	Files       []string
	Client      *http.Client
	Concurrency int
	Logger      *slog.Logger
}

type Loader struct {
	baseURL     string
	org         string
	files       []string
	client      *http.Client
	concurrency int
	logger      *slog.Logger
}

func NewLoader(opts Options) *Loader {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://huggingface.co"
	}
	if opts.Org == "" {
		opts.Org = "sentence-transformers"
	}
	if len(opts.Files) == 0 {
		opts.Files = DefaultFiles
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Minute}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loader{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		org:         opts.Org,
		files:       opts.Files,
		client:      opts.Client,
		concurrency: opts.Concurrency,
		logger:      opts.Logger.With("component", "aimodel"),
	}
}

// EnsureModel makes cacheDir/<name> hold a complete copy of the model and
// returns its path. A directory already marked ready is left untouched.
// The cache directory must have a single writer.
func (l *Loader) EnsureModel(ctx context.Context, name, cacheDir string) (dir string, err error) {
	org, repo, err := l.splitName(name)
	if err != nil {
		return "", &ModelFetchError{Model: name, Err: err}
	}
	dir = filepath.Join(cacheDir, repo)

	if m, ok := ReadManifest(dir); ok {
		metrics.ModelFetches.WithLabelValues("cached").Inc()
		l.logger.Info("model already cached", "model", name, "dir", dir, "files", len(m.Files))
		return dir, nil
	}

	defer func() {
		if err != nil {
			metrics.ModelFetches.WithLabelValues("failed").Inc()
			return
		}
		metrics.ModelFetches.WithLabelValues("downloaded").Inc()
	}()

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", &ModelFetchError{Model: name, Err: err}
	}
	l.removeStale(cacheDir, repo)

	staging := filepath.Join(cacheDir, fmt.Sprintf(".%s.partial-%s", repo, uuid.NewString()))
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", &ModelFetchError{Model: name, Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	l.logger.Info("downloading model", "model", name, "org", org, "files", len(l.files), "staging", staging)
	start := time.Now()

	sizes, err := l.fetchAll(ctx, org, repo, staging)
	if err != nil {
		return "", err
	}

	manifest := Manifest{
		Name:      repo,
		Org:       org,
		Source:    l.baseURL,
		Files:     sizes,
		FetchedAt: time.Now().UTC(),
	}
	if err := writeManifest(staging, manifest); err != nil {
		return "", &ModelFetchError{Model: name, Err: err}
	}

	// an unmarked directory is left over from an interrupted copy
	if err := os.RemoveAll(dir); err != nil {
		return "", &ModelFetchError{Model: name, Err: err}
	}
	if err := os.Rename(staging, dir); err != nil {
		return "", &ModelFetchError{Model: name, Err: err}
	}
	committed = true

	l.logger.Info("model cached", "model", name, "dir", dir, "elapsed", time.Since(start).String())
	return dir, nil
}

func (l *Loader) fetchAll(ctx context.Context, org, repo, staging string) (map[string]int64, error) {
	sizes := make([]int64, len(l.files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, file := range l.files {
		g.Go(func() error {
			n, err := l.fetch(gctx, org, repo, file, staging)
			if err != nil {
				return &ModelFetchError{Model: org + "/" + repo, File: file, Err: err}
			}
			sizes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(l.files))
	for i, file := range l.files {
		out[file] = sizes[i]
	}
	return out, nil
}

func (l *Loader) fetch(ctx context.Context, org, repo, file, staging string) (int64, error) {
	url := l.baseURL + "/" + path.Join(org, repo, "resolve", "main", file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	target := filepath.Join(staging, filepath.FromSlash(file))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("short read: got %d of %d bytes", n, resp.ContentLength)
	}

	l.logger.Debug("model file fetched", "file", file, "bytes", n)
	return n, nil
}

// removeStale drops staging directories of earlier runs that never committed.
func (l *Loader) removeStale(cacheDir, repo string) {
	matches, err := filepath.Glob(filepath.Join(cacheDir, "."+repo+".partial-*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			l.logger.Warn("failed to remove stale staging dir", "dir", m, "error", err)
			continue
		}
		l.logger.Info("removed stale staging dir", "dir", m)
	}
}

func (l *Loader) splitName(name string) (org, repo string, err error) {
	name = strings.TrimSpace(name)
	org = l.org
	if i := strings.LastIndex(name, "/"); i >= 0 {
		org, name = name[:i], name[i+1:]
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `\`) {
		return "", "", fmt.Errorf("invalid model name %q", name)
	}
	return org, name, nil
}

// ReadManifest returns the manifest of a committed model directory. A
// directory whose files no longer match the manifest is not ready.
func ReadManifest(dir string) (*Manifest, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, ReadyFile))
	if err != nil {
		return nil, false
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	for file, size := range m.Files {
		fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(file)))
		if err != nil || fi.Size() != size {
			return nil, false
		}
	}
	return &m, true
}

func writeManifest(dir string, m Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ReadyFile), raw, 0o644)
}
