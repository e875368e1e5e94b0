// Package cache holds the on-device snapshot of the last known-good message
// list. The snapshot is a single blob under one key and is always replaced
// wholesale.
package cache

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

// MessagesKey is the key the ordered message list is stored under.
const MessagesKey = "messages"

// Store persists the snapshot. A round trip preserves each CreatedAt
// instant, not its location: times are stored and read back in UTC, so
// compare them with time.Time.Equal.
type Store interface {
	// Write durably replaces the stored snapshot with list.
	Write(ctx context.Context, list []models.Message) error
	// Read returns the last written list, or an empty list when nothing has
	// been written yet.
	Read(ctx context.Context) ([]models.Message, error)
	Close() error
}

// Encode serializes an ordered list into the snapshot blob.
func Encode(list []models.Message) ([]byte, error) {
	if list == nil {
		list = []models.Message{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("%w: encode snapshot: %w", models.ErrCacheWrite, err)
	}
	return data, nil
}

// Decode parses a snapshot blob. An empty blob is an empty list; anything
// that does not parse is reported as ErrCacheCorrupt.
func Decode(data []byte) ([]models.Message, error) {
	if len(data) == 0 {
		return []models.Message{}, nil
	}
	var list []models.Message
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrCacheCorrupt, err)
	}
	if list == nil {
		list = []models.Message{}
	}
	return list, nil
}
