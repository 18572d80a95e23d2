package connector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/pkg/types"
)

func writeSource(t *testing.T, root, resID, name, content string, mod time.Time) {
	t.Helper()
	dir := filepath.Join(root, resID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestLocalFetch_InitialSync(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeSource(t, root, "notes", "b.txt", "second", now)
	writeSource(t, root, "notes", "a.txt", "first", now.Add(-time.Minute))
	writeSource(t, root, "notes", ".hidden", "skip me", now)

	l := NewLocal(root)
	res := types.Resource{TenantID: "acme", Platform: "local", ID: "notes"}

	result, err := l.Fetch(context.Background(), res, "")
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "a.txt", result.Items[0].ItemID)
	assert.Equal(t, "first", result.Items[0].Payload)
	assert.Equal(t, "b.txt", result.Items[1].ItemID)
	assert.NotEmpty(t, result.NewCursor)
}

func TestLocalFetch_CursorSkipsSeenFiles(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeSource(t, root, "notes", "old.txt", "old", now.Add(-time.Hour))

	l := NewLocal(root)
	res := types.Resource{TenantID: "acme", Platform: "local", ID: "notes"}

	first, err := l.Fetch(context.Background(), res, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 1)

	second, err := l.Fetch(context.Background(), res, first.NewCursor)
	require.NoError(t, err)
	assert.Empty(t, second.Items)
	assert.Equal(t, first.NewCursor, second.NewCursor)

	writeSource(t, root, "notes", "new.txt", "new", now)
	third, err := l.Fetch(context.Background(), res, first.NewCursor)
	require.NoError(t, err)
	require.Len(t, third.Items, 1)
	assert.Equal(t, "new.txt", third.Items[0].ItemID)
}

func TestLocalFetch_MissingDirectoryIsTransient(t *testing.T) {
	l := NewLocal(t.TempDir())
	res := types.Resource{TenantID: "acme", Platform: "local", ID: "nope"}

	_, err := l.Fetch(context.Background(), res, "")
	assert.True(t, types.IsTransient(err))
}

func TestLocalRefreshCredentials(t *testing.T) {
	l := NewLocal(t.TempDir())

	cred, err := l.RefreshCredentials(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "local", cred.Platform)
	assert.True(t, cred.ExpiresAt.IsZero())
}
