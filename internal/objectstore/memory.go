package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/assethub/internal/apperrors"
)

type memObject struct {
	data        []byte
	contentType string
}

// MemoryStore is an in-process ObjectStore for tests and single-node demos.
// Buckets spring into existence on first write.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memObject
	baseURL string
}

// NewMemoryStore returns an empty store whose presigned URLs are rooted at baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://objects"
	}
	return &MemoryStore{buckets: make(map[string]map[string]memObject), baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *MemoryStore) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string]memObject)
		s.buckets[bucket] = b
	}
	b[key] = memObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][key]
	if !ok {
		return nil, apperrors.NotFound("object", bucket+"/"+key)
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemoryStore) Download(ctx context.Context, bucket, key, filePath string) error {
	data, err := s.Get(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	return nil
}

func (s *MemoryStore) PresignedURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.buckets[bucket][key]
	s.mu.RUnlock()
	if !ok {
		return "", apperrors.NotFound("object", bucket+"/"+key)
	}
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s/%s/%s?expires=%d", s.baseURL, url.PathEscape(bucket), key, expires), nil
}

func (s *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, bucket, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.buckets[bucket] {
		if strings.HasPrefix(k, prefix) {
			delete(s.buckets[bucket], k)
		}
	}
	return nil
}

func (s *MemoryStore) EnsureBuckets(_ context.Context, buckets ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range buckets {
		if _, ok := s.buckets[b]; !ok {
			s.buckets[b] = make(map[string]memObject)
		}
	}
	return nil
}

// Keys lists the keys stored in bucket, for tests and diagnostics.
func (s *MemoryStore) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.buckets[bucket]))
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	return keys
}
