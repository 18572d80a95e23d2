package detector

import (
	"fmt"
	"regexp"
	"time"

	"github.com/driftline-systems/driftline/pkg/types"
)

// Snapshot is the per-tenant view of accumulated state a matcher scans.
type Snapshot struct {
	TenantID string
	Cursors  []types.SyncCursor
	Content  []types.ContentItem
	Activity []types.ActivityEvent
	Now      time.Time
}

// Matcher detects one independent behavioral pattern. Matchers never write;
// they return candidate signals for the detector to dedup and emit.
type Matcher interface {
	Name() string
	Match(snap Snapshot) []types.Signal
}

// InactivityMatcher flags tracked resources with no successful sync activity
// for the configured number of days.
type InactivityMatcher struct {
	Days int
}

func (m InactivityMatcher) Name() string { return "inactivity" }

func (m InactivityMatcher) Match(snap Snapshot) []types.Signal {
	days := m.Days
	if days <= 0 {
		days = 7
	}
	threshold := snap.Now.Add(-time.Duration(days) * 24 * time.Hour)

	var out []types.Signal
	for _, c := range snap.Cursors {
		if c.Suspended || c.LastSuccess.IsZero() {
			continue // never-synced and suspended resources alert elsewhere
		}
		latest := c.LastSuccess
		for _, item := range snap.Content {
			if item.Resource == c.Resource && item.FetchedAt.After(latest) {
				latest = item.FetchedAt
			}
		}
		if latest.After(threshold) {
			continue
		}
		out = append(out, types.Signal{
			TenantID: snap.TenantID,
			Type:     types.SignalInactivity,
			DedupKey: c.Resource.Key(),
			Message:  fmt.Sprintf("no activity on %s for %d days", c.Resource.Key(), days),
		})
	}
	return out
}

// dateish matches ISO dates embedded in content payloads.
var dateish = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

// DeadlineMatcher flags content items mentioning a date that falls within
// the configured look-ahead window.
type DeadlineMatcher struct {
	Days int
}

func (m DeadlineMatcher) Name() string { return "deadline" }

func (m DeadlineMatcher) Match(snap Snapshot) []types.Signal {
	days := m.Days
	if days <= 0 {
		days = 3
	}
	horizon := snap.Now.Add(time.Duration(days) * 24 * time.Hour)

	var out []types.Signal
	for _, item := range snap.Content {
		for _, match := range dateish.FindAllString(item.Payload, -1) {
			due, err := time.Parse("2006-01-02", match)
			if err != nil {
				continue
			}
			if due.Before(snap.Now) || due.After(horizon) {
				continue
			}
			out = append(out, types.Signal{
				TenantID: snap.TenantID,
				Type:     types.SignalDeadlineApproaching,
				DedupKey: item.Resource.Key() + "#" + item.ItemID + "#" + match,
				Message:  fmt.Sprintf("deadline %s approaching in %s", match, item.Resource.Key()),
			})
		}
	}
	return out
}
