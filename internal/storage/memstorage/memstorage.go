// Package memstorage keeps images in process memory
package memstorage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/UnendingLoop/Colorizer/internal/model"
)

type object struct {
	data        []byte
	contentType string
}

type MemImageStorage struct {
	mu      sync.RWMutex
	objects map[string]object
}

func New() *MemImageStorage {
	return &MemImageStorage{objects: make(map[string]object)}
}

func (s *MemImageStorage) Put(_ context.Context, key string, _ int64, contentType string, r io.Reader) error {
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.objects[key] = object{data: data, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemImageStorage) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, "", model.ErrImageNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
}

func (s *MemImageStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored objects.
func (s *MemImageStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
