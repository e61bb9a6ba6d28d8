// Package media stores synthesized audio on the local filesystem and serves
// it over HTTP.
package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// urlPrefix is the HTTP path prefix media files are served under.
const urlPrefix = "/media/"

// Store persists audio blobs as files under a root directory and hands out
// URLs under /media/. It satisfies the audio sink interface TTS providers
// store their output through.
type Store struct {
	root    string
	baseURL string
}

// NewStore creates a media store rooted at dir, creating the directory if
// needed. baseURL is prepended to generated URLs so clients on other hosts
// can fetch the audio; an empty baseURL produces host-relative URLs.
func NewStore(dir, baseURL string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("media: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create directory: %w", err)
	}
	return &Store{
		root:    dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Store writes data under the given name and returns the URL it is served
// at. Names are flattened to their base component so callers cannot escape
// the media root.
func (s *Store) Store(_ context.Context, name, _ string, data []byte) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("media: invalid file name %q", name)
	}
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return "", fmt.Errorf("media: write %q: %w", name, err)
	}
	return s.baseURL + path.Join(urlPrefix, name), nil
}

// Register mounts the media file server on mux.
func (s *Store) Register(mux *http.ServeMux) {
	mux.Handle("GET "+urlPrefix, http.StripPrefix(urlPrefix, http.FileServer(http.Dir(s.root))))
}
