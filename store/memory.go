package store

import (
	"context"
	"sync"

	"github.com/taxdesk/go-gst/gst"
)

// Memory keeps the encoded state in process memory. It is meant for tests
// and for short-lived CLI runs that should not touch disk.
type Memory struct {
	mu   sync.Mutex
	data []byte
	blob *blob
}

var _ gst.Repository = (*Memory)(nil)

// NewMemory returns an empty in-memory repository. It uses the JSON codec
// unless WithCodec says otherwise.
func NewMemory(opts ...Option) (*Memory, error) {
	b, err := newBlob(applyOptions(CodecJSON, opts))
	if err != nil {
		return nil, err
	}
	return &Memory{blob: b}, nil
}

func (m *Memory) Load(_ context.Context) (gst.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blob.decode(m.data)
}

func (m *Memory) Save(_ context.Context, state gst.State) error {
	data, err := m.blob.encode(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

// Bytes returns the stored blob.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}
