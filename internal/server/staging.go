package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/matthewsawatzky/minidrive/internal/catalog"
	"github.com/matthewsawatzky/minidrive/internal/util"
)

const stagedSuffix = ".upload"

var errUploadTooLarge = errors.New("file exceeds the upload size limit")

// stagedFile is a selected file waiting for the user to confirm the upload.
type stagedFile struct {
	ID          string
	Name        string
	Path        string
	Size        int64
	ContentType string
	IsImage     bool
	CreatedAt   time.Time
}

// staging holds at most one selected file per browser session on disk under
// dir. Selecting a new file, confirming or cancelling releases the previous
// one.
type staging struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	files map[string]stagedFile
}

func newStaging(dir string) (*staging, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &staging{dir: dir, now: time.Now, files: map[string]stagedFile{}}, nil
}

// sweep removes staged files older than maxAge. With maxAge 0 it removes
// every file in the directory, which is what a fresh start wants.
func (s *staging) sweep(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	for session, f := range s.files {
		if maxAge == 0 || f.CreatedAt.Before(cutoff) {
			delete(s.files, session)
		}
	}
	live := map[string]bool{}
	for _, f := range s.files {
		live[f.Path] = true
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), stagedSuffix) {
			continue
		}
		p := filepath.Join(s.dir, e.Name())
		if live[p] {
			continue
		}
		if err := os.Remove(p); err == nil {
			removed++
		}
	}
	return removed, nil
}

// stage copies at most limit bytes of src to disk for session, replacing
// whatever that session had staged before.
func (s *staging) stage(session, name string, src io.Reader, limit int64) (stagedFile, error) {
	name = util.CleanFileName(name)
	if name == "" {
		return stagedFile{}, errors.New("file name is empty")
	}
	id := uuid.NewString()
	p, err := util.SafeJoin(s.dir, id+stagedSuffix)
	if err != nil {
		return stagedFile{}, err
	}
	out, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return stagedFile{}, fmt.Errorf("create staged file: %w", err)
	}
	n, err := io.Copy(out, io.LimitReader(src, limit+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > limit {
		err = errUploadTooLarge
	}
	if err != nil {
		_ = os.Remove(p)
		return stagedFile{}, err
	}

	f := stagedFile{ID: id, Name: name, Path: p, Size: n, CreatedAt: s.now()}
	if mt, err := mimetype.DetectFile(p); err == nil {
		f.ContentType = mt.String()
		f.IsImage = strings.HasPrefix(mt.String(), "image/")
	}
	if !f.IsImage && catalog.IsImageName(name) && strings.HasPrefix(f.ContentType, "text/") {
		// SVG sniffs as text/xml or text/plain.
		f.IsImage = true
		f.ContentType = "image/svg+xml"
	}

	s.mu.Lock()
	prev, had := s.files[session]
	s.files[session] = f
	s.mu.Unlock()
	if had {
		_ = os.Remove(prev.Path)
	}
	return f, nil
}

func (s *staging) get(session string) (stagedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[session]
	return f, ok
}

// release drops the session's staged file. Releasing with a stale id is a
// no-op so a confirm racing a new selection keeps the newer file.
func (s *staging) release(session, id string) {
	s.mu.Lock()
	f, ok := s.files[session]
	if !ok || (id != "" && f.ID != id) {
		s.mu.Unlock()
		return
	}
	delete(s.files, session)
	s.mu.Unlock()
	_ = os.Remove(f.Path)
}
