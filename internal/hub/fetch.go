package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samcharles93/parley/internal/logger"
	"github.com/samcharles93/parley/internal/tokenizer"
	"github.com/samcharles93/parley/internal/version"
)

// DefaultEndpoint is the public Hugging Face hub.
const DefaultEndpoint = "https://huggingface.co"

// TokenizerFiles are fetched for every repo. The config is optional.
var TokenizerFiles = []File{
	{Name: "tokenizer.json", Required: true},
	{Name: "tokenizer_config.json"},
}

type File struct {
	Name     string
	Required bool
}

// ErrNotFound is returned when a required file does not exist upstream.
var ErrNotFound = errors.New("not found on hub")

// Fetcher downloads repo files into a local cache laid out as
// <dir>/<owner>/<name>/<revision>/<file>. Files already present are reused.
type Fetcher struct {
	Endpoint string
	Dir      string
	Token    string
	Revision string
	Client   *http.Client
	Log      logger.Logger
}

// NewFetcher uses HF_TOKEN for gated repos when token is empty.
func NewFetcher(dir, token string) *Fetcher {
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}
	return &Fetcher{
		Endpoint: DefaultEndpoint,
		Dir:      dir,
		Token:    token,
		Revision: "main",
		Client:   &http.Client{Timeout: 5 * time.Minute},
		Log:      logger.Discard(),
	}
}

// DefaultCacheDir is $PARLEY_CACHE_DIR, else <user cache>/parley/hub.
func DefaultCacheDir() (string, error) {
	if dir := os.Getenv("PARLEY_CACHE_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "parley", "hub"), nil
}

// RepoDir is where files of repoID are cached.
func (f *Fetcher) RepoDir(repoID string) string {
	return filepath.Join(f.Dir, filepath.FromSlash(repoID), f.Revision)
}

// Fetch makes sure every file is cached and returns the repo directory.
// Missing optional files are skipped.
func (f *Fetcher) Fetch(ctx context.Context, repoID string, files []File) (string, error) {
	if strings.Count(repoID, "/") != 1 || strings.Contains(repoID, "..") {
		return "", fmt.Errorf("invalid repo id %q", repoID)
	}
	dir := f.RepoDir(repoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	for _, file := range files {
		dst := filepath.Join(dir, file.Name)
		if _, err := os.Stat(dst); err == nil {
			f.Log.Debug("hub cache hit", "repo", repoID, "file", file.Name)
			continue
		}
		err := f.download(ctx, repoID, file.Name, dst)
		if errors.Is(err, ErrNotFound) && !file.Required {
			f.Log.Debug("optional hub file missing", "repo", repoID, "file", file.Name)
			continue
		}
		if err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (f *Fetcher) download(ctx context.Context, repoID, name, dst string) error {
	u := fmt.Sprintf("%s/%s/resolve/%s/%s", strings.TrimRight(f.Endpoint, "/"), repoID, url.PathEscape(f.Revision), name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "parley/"+version.String())
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	start := time.Now()
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s/%s: %w", repoID, name, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s/%s: %w", repoID, name, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s/%s: access denied (%d); set HF_TOKEN for gated repos", repoID, name, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s/%s: hub returned %d", repoID, name, resp.StatusCode)
	}

	// Write to a temp file first so an interrupted download never looks cached.
	tmp, err := os.CreateTemp(filepath.Dir(dst), name+".*.part")
	if err != nil {
		return err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("download %s/%s: %w", repoID, name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	f.Log.Info("downloaded", "repo", repoID, "file", name, "bytes", n, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Tokenizer fetches and loads the tokenizer that belongs to modelRepo.
func (f *Fetcher) Tokenizer(ctx context.Context, modelRepo string) (*tokenizer.HFTokenizer, error) {
	repo := TokenizerRepo(modelRepo)
	dir, err := f.Fetch(ctx, repo, TokenizerFiles)
	if err != nil {
		return nil, err
	}
	f.Log.Debug("loading tokenizer", "repo", repo, "dir", dir)
	return tokenizer.LoadHFTokenizer(filepath.Join(dir, "tokenizer.json"), filepath.Join(dir, "tokenizer_config.json"))
}
