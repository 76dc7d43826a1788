package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRistrettoStorage(t *testing.T) {
	store, err := NewRistrettoStorage(128)
	require.NoError(t, err)
	defer store.Close()

	value, err := store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, store.Set("ip", []byte("3"), time.Minute))
	value, err = store.Get("ip")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), value)

	require.NoError(t, store.Delete("ip"))
	value, _ = store.Get("ip")
	assert.Nil(t, value)

	require.NoError(t, store.Set("a", []byte("1"), time.Minute))
	require.NoError(t, store.Reset())
	value, _ = store.Get("a")
	assert.Nil(t, value)
}

func TestRistrettoStorageExpiry(t *testing.T) {
	store, err := NewRistrettoStorage(128)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set("ip", []byte("1"), 20*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	value, _ := store.Get("ip")
	assert.Nil(t, value)
}

func newTestArchiveStore(t *testing.T) *ArchiveStore {
	t.Helper()
	store, err := NewArchiveStore(ArchiveStoreConfig{
		Endpoint:   "127.0.0.1:9000",
		AccessKey:  "minioadmin",
		SecretKey:  "minioadmin",
		Region:     "us-east-1",
		Bucket:     "frames",
		Prefix:     "archives",
		PresignTTL: time.Hour,
	})
	require.NoError(t, err)
	return store
}

func TestArchiveStoreKey(t *testing.T) {
	store := newTestArchiveStore(t)
	assert.Equal(t, "archives/abc/extracted_frames.zip", store.Key("abc", "extracted_frames.zip"))
}

func TestArchiveStorePresignedURL(t *testing.T) {
	store := newTestArchiveStore(t)

	u, err := store.PresignedURL(context.Background(), "archives/abc/extracted_frames.zip", "extracted_frames.zip")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/frames/archives/abc/extracted_frames.zip", u.Path)
	assert.True(t, strings.Contains(u.Query().Get("response-content-disposition"), "extracted_frames.zip"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestNewArchiveStoreRequiresBucket(t *testing.T) {
	_, err := NewArchiveStore(ArchiveStoreConfig{Endpoint: "127.0.0.1:9000"})
	require.Error(t, err)
}
