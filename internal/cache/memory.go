package cache

import (
	"context"
	"sync"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the encoded snapshot in memory. It goes through the same
// codec as the durable store so corruption and fidelity behave identically.
type MemoryStore struct {
	mu   sync.RWMutex
	blob []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Write(ctx context.Context, list []models.Message) error {
	data, err := Encode(list)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.blob = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Read(ctx context.Context) ([]models.Message, error) {
	s.mu.RLock()
	data := s.blob
	s.mu.RUnlock()
	return Decode(data)
}

// SetRaw replaces the stored blob verbatim.
func (s *MemoryStore) SetRaw(data []byte) {
	s.mu.Lock()
	s.blob = append([]byte(nil), data...)
	s.mu.Unlock()
}

func (s *MemoryStore) Close() error {
	return nil
}
