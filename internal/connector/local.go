package connector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Local is a connector backed by a directory tree, used for local projects
// and end-to-end verification without external platform credentials. Each
// resource maps to a subdirectory; every file in it is one content item and
// the cursor is the newest modification time already seen.
type Local struct {
	root string
}

// NewLocal creates a connector rooted at dir.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// Platform returns the platform identifier.
func (l *Local) Platform() string { return "local" }

// Fetch lists files under the resource's directory newer than the cursor.
func (l *Local) Fetch(_ context.Context, res types.Resource, cursor string) (types.FetchResult, error) {
	dir := filepath.Join(l.root, res.ID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return types.FetchResult{}, &types.TransientFetchError{
			Platform: l.Platform(),
			Err:      fmt.Errorf("reading %s: %w", dir, err),
		}
	}

	var since time.Time
	if cursor != "" {
		if t, perr := time.Parse(time.RFC3339Nano, cursor); perr == nil {
			since = t
		}
	}

	now := time.Now().UTC()
	newest := since
	var items []types.ContentItem
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime().UTC()
		if !mod.After(since) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		items = append(items, types.ContentItem{
			Resource:  res,
			ItemID:    entry.Name(),
			Payload:   string(data),
			FetchedAt: now,
		})
		if mod.After(newest) {
			newest = mod
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })

	result := types.FetchResult{
		Items:     items,
		NewCursor: cursor,
		FetchedAt: now,
	}
	if !newest.IsZero() {
		result.NewCursor = newest.Format(time.RFC3339Nano)
	}
	return result, nil
}

// RefreshCredentials returns a static non-expiring credential; the local
// filesystem needs none.
func (l *Local) RefreshCredentials(_ context.Context, tenantID string) (types.Credential, error) {
	return types.Credential{
		TenantID: tenantID,
		Platform: l.Platform(),
		Token:    "local",
	}, nil
}
