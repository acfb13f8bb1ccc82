package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "dispatch/a.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Read(ctx, "dispatch/a.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Write(ctx, "dispatch/a.json", []byte(`{"ok":true}`)))
	require.NoError(t, s.Write(ctx, "dispatch/b.json", []byte(`{}`)))

	data, err := s.Read(ctx, "dispatch/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	paths, err := s.List(ctx, "dispatch")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dispatch/a.json", "dispatch/b.json"}, paths)

	require.NoError(t, s.Delete(ctx, "dispatch/a.json"))
	assert.ErrorIs(t, s.Delete(ctx, "dispatch/a.json"), ErrNotFound)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Options{Type: TypeLocal, BaseDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = Open(context.Background(), Options{Type: TypeS3})
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Type: "ftp"})
	assert.Error(t, err)
}

func TestLocalStorage_Append(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, "events/e.ndjson", []byte("a\n")))
	require.NoError(t, s.Append(ctx, "events/e.ndjson", []byte("b\n")))

	data, err := s.Read(ctx, "events/e.ndjson")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
}

func TestLocalStorage_ConfinedToBase(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "../escape.json", []byte("x")))
	ok, err := s.Exists(ctx, "escape.json")
	require.NoError(t, err)
	assert.True(t, ok)
}
