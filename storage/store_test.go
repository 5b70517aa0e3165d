package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/gonuget-server/observability"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "archives"), observability.NewNullLogger())
	require.NoError(t, err)
	return s
}

func TestPath(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "archives"), nil)
	require.NoError(t, err)

	path := s.Path("foo", "1.2.3")
	assert.Equal(t, filepath.Join("foo", "foo_1.2.3.nuget"), strings.TrimPrefix(path, s.root+string(os.PathSeparator)))
}

func TestStoreAndGet(t *testing.T) {
	s := newTestStore(t)

	payload := []byte("archive bytes")
	require.NoError(t, s.Store("foo", "1.0.0", bytes.NewReader(payload)))

	h, err := s.Get("foo", "1.0.0")
	require.NoError(t, err)
	defer h.Close()

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	size, err := h.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)
}

func TestStoreReplacesExisting(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Store("foo", "1.0.0", strings.NewReader("first and longer payload")))
	require.NoError(t, s.Store("foo", "1.0.0", strings.NewReader("second")))

	h, err := s.Get("foo", "1.0.0")
	require.NoError(t, err)
	defer h.Close()

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("foo", "9.9.9")
	assert.True(t, os.IsNotExist(err))
}

func TestRewrite(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Store("foo", "1.0.0", strings.NewReader("original")))

	h, err := s.Get("foo", "1.0.0")
	require.NoError(t, err)

	h, err = s.Rewrite("foo", "1.0.0", h)
	require.NoError(t, err)

	_, err = h.Write([]byte("rewritten"))
	require.NoError(t, err)
	require.NoError(t, h.Sync())
	require.NoError(t, h.Close())

	h, err = s.Get("foo", "1.0.0")
	require.NoError(t, err)
	defer h.Close()

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "rewritten", string(got))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Store("foo", "1.0.0", strings.NewReader("bytes")))
	s.Delete("foo", "1.0.0")

	_, err := os.Stat(s.Path("foo", "1.0.0"))
	assert.True(t, os.IsNotExist(err))

	// Deleting a missing version is a no-op.
	s.Delete("foo", "1.0.0")
}

func TestConcurrentStores(t *testing.T) {
	s := newTestStore(t)

	payload := strings.Repeat("x", 1<<16)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Store("foo", "1.0.0", strings.NewReader(payload)))
		}()
	}
	wg.Wait()

	h, err := s.Get("foo", "1.0.0")
	require.NoError(t, err)
	defer h.Close()

	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestConcurrentDistinctVersions(t *testing.T) {
	s := newTestStore(t)

	versions := []string{"1.0.0", "1.1.0", "2.0.0-beta1", "3.0.0"}

	var wg sync.WaitGroup
	for _, v := range versions {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			assert.NoError(t, s.Store("foo", v, strings.NewReader("content "+v)))
		}(v)
	}
	wg.Wait()

	for _, v := range versions {
		h, err := s.Get("foo", v)
		require.NoError(t, err)
		got, err := io.ReadAll(h)
		require.NoError(t, err)
		require.NoError(t, h.Close())
		assert.Equal(t, "content "+v, string(got))
	}
}
