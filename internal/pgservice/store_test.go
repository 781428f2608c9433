package pgservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_service.conf")
	require.NoError(t, os.WriteFile(path, []byte("[a]\nhost=h\n[b]\n"), 0600))

	store := NewStore(path)
	assert.Equal(t, 0, store.Snapshot().Len())

	snap := store.Load(context.Background())
	require.NoError(t, snap.Err())
	assert.Equal(t, 2, snap.Len())
	assert.Same(t, snap, store.Snapshot())

	p, ok := snap.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "h", p.DisplayHost())

	_, ok = snap.Lookup("missing")
	assert.False(t, ok)
}

func TestStoreLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.conf")
	store := NewStore(path)

	snap := store.Load(context.Background())
	assert.Equal(t, 0, snap.Len())
	assert.Empty(t, snap.Profiles())

	var readErr *ConfigReadError
	require.True(t, errors.As(snap.Err(), &readErr))
	assert.Equal(t, path, readErr.Path)
}

func TestStoreReloadReplacesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_service.conf")
	require.NoError(t, os.WriteFile(path, []byte("[a]\n"), 0600))

	store := NewStore(path)
	first := store.Load(context.Background())

	require.NoError(t, os.WriteFile(path, []byte("[b]\n[c]\n"), 0600))
	second := store.Load(context.Background())

	assert.NotSame(t, first, second)
	assert.Equal(t, 1, first.Len(), "old snapshot must not change")
	assert.Equal(t, 2, second.Len())
}

func TestStoreConcurrentReaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_service.conf")
	require.NoError(t, os.WriteFile(path, []byte("[a]\n[b]\n"), 0600))

	store := NewStore(path)
	store.Load(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Load(context.Background())
		}()
		go func() {
			defer wg.Done()
			n := store.Snapshot().Len()
			assert.True(t, n == 2, "reader saw partial list of %d", n)
		}()
	}
	wg.Wait()
}

func TestSnapshotProfilesIsCopy(t *testing.T) {
	snap := &Snapshot{profiles: []ServiceProfile{{Name: "a"}}}
	got := snap.Profiles()
	got[0].Name = "changed"
	assert.Equal(t, "a", snap.Profiles()[0].Name)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvServiceFile, "/etc/custom_service.conf")
	assert.Equal(t, "/etc/custom_service.conf", DefaultPath())

	t.Setenv(EnvServiceFile, "")
	assert.Equal(t, ".pg_service.conf", filepath.Base(DefaultPath()))
}
