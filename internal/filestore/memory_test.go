package filestore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covelabs/docdex/internal/apperr"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.Put(ctx, "col/res/notes.txt", strings.NewReader("hamster notes"), "text/plain"))

	r, err := st.Get(ctx, "col/res/notes.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hamster notes", string(data))
}

func TestMemoryStorePutReplaces(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.Put(ctx, "k", strings.NewReader("v1"), "text/plain"))
	require.NoError(t, st.Put(ctx, "k", strings.NewReader("v2"), "text/plain"))

	r, err := st.Get(ctx, "k")
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	assert.Equal(t, "v2", string(data))
	assert.Equal(t, 1, st.Len())
}

func TestMemoryStoreMissing(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.Get(ctx, "absent")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = st.Presign(ctx, "absent", time.Hour)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Deleting a missing object is fine.
	assert.NoError(t, st.Delete(ctx, "absent"))
}

func TestMemoryStorePresign(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Put(ctx, "k", strings.NewReader("v"), "text/plain"))

	url, err := st.Presign(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "k?expires=")
}
