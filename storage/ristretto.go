package storage

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoStorage implements fiber.Storage on a Ristretto cache. The upload rate limiter keeps its counters here.
type RistrettoStorage struct {
	cache *ristretto.Cache[string, []byte]
}

// NewRistrettoStorage creates a storage tracking up to maxKeys entries
func NewRistrettoStorage(maxKeys int64) (*RistrettoStorage, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        maxKeys * 10,
		MaxCost:            maxKeys,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter cache: %w", err)
	}
	return &RistrettoStorage{cache: cache}, nil
}

// Get retrieves data from cache
func (r *RistrettoStorage) Get(key string) ([]byte, error) {
	if value, found := r.cache.Get(key); found {
		return value, nil
	}
	return nil, nil
}

// Set stores data in cache. The write is applied before returning so a following Get sees it.
func (r *RistrettoStorage) Set(key string, val []byte, exp time.Duration) error {
	if len(key) == 0 || len(val) == 0 {
		return nil
	}
	r.cache.SetWithTTL(key, val, 1, exp)
	r.cache.Wait()
	return nil
}

// Delete removes data from cache
func (r *RistrettoStorage) Delete(key string) error {
	r.cache.Del(key)
	return nil
}

// Reset clears all data from cache
func (r *RistrettoStorage) Reset() error {
	r.cache.Clear()
	return nil
}

func (r *RistrettoStorage) Close() error {
	r.cache.Close()
	return nil
}
