package blob

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/securebox/internal/common"
)

type memObject struct {
	data         []byte
	lastModified time.Time
}

// MemStore is an in-memory Store used in tests and local runs.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	now     func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string]memObject),
		now:     time.Now,
	}
}

// SetNow overrides the clock used for object timestamps. Test hook.
func (s *MemStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemStore) Put(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[name] = memObject{data: buf, lastModified: s.now()}
	return nil
}

func (s *MemStore) Get(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[name]
	if !ok {
		return nil, common.ErrNotFound
	}
	buf := make([]byte, len(obj.data))
	copy(buf, obj.data)
	return buf, nil
}

func (s *MemStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	return nil
}

func (s *MemStore) List(ctx context.Context) ([]Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Object, 0, len(s.objects))
	for name, obj := range s.objects {
		result = append(result, Object{
			Name:         name,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		})
	}
	return result, nil
}
