package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/taxdesk/go-gst/gst"
)

// File keeps the state in a single file, replaced atomically on every save.
type File struct {
	mu   sync.Mutex
	path string
	blob *blob
}

var _ gst.Repository = (*File)(nil)

// NewFile returns a repository stored at path, creating the parent directory
// when needed. It uses the JSON codec unless WithCodec says otherwise.
func NewFile(path string, opts ...Option) (*File, error) {
	if path == "" {
		return nil, errors.New("file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrapf(err, "error creating directory for %s", path)
	}
	b, err := newBlob(applyOptions(CodecJSON, opts))
	if err != nil {
		return nil, err
	}
	return &File{path: path, blob: b}, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Load(_ context.Context) (gst.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyState(), nil
	}
	if err != nil {
		return gst.State{}, errors.Wrapf(err, "error reading %s", f.path)
	}
	return f.blob.decode(data)
}

func (f *File) Save(_ context.Context, state gst.State) error {
	data, err := f.blob.encode(state)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return errors.Wrap(err, "error creating temp file")
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "error setting file mode")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "error writing %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "error syncing %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "error closing %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrapf(err, "error replacing %s", f.path)
	}
	return nil
}
