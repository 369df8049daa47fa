package attachments

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps blobs in process. Used by tests and ATTACHMENT_STORE=memory.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int
	// FailAfter makes the (n+1)th Put fail when > 0.
	FailAfter int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (s *MemoryStore) Put(ctx context.Context, messageID int64, up Upload) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	if err := Validate(up); err != nil {
		return Stored{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAfter > 0 && s.seq >= s.FailAfter {
		return Stored{}, fmt.Errorf("memory store: injected failure")
	}
	s.seq++
	key := ObjectKey(messageID, fmt.Sprintf("%04d", s.seq), up.FileName)
	s.objects[key] = append([]byte(nil), up.Data...)
	return Stored{
		Key:         key,
		URL:         "memory://" + key,
		ByteSize:    int64(len(up.Data)),
		ContentType: DetectContentType(up),
	}, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	return b, ok
}
