package dynamodb

import (
	"strings"
	"testing"
	"time"

	"github.com/driftline-systems/driftline/pkg/types"
)

func TestTenantPK(t *testing.T) {
	got := tenantPK("acme")
	if got != "TENANT#acme" {
		t.Errorf("tenantPK = %q, want %q", got, "TENANT#acme")
	}
}

func TestCursorSK(t *testing.T) {
	res := types.Resource{TenantID: "acme", Platform: "github", ID: "repo-a"}
	got := cursorSK(res)
	if got != "CURSOR#github#repo-a" {
		t.Errorf("cursorSK = %q, want %q", got, "CURSOR#github#repo-a")
	}
}

func TestContentSK(t *testing.T) {
	res := types.Resource{TenantID: "acme", Platform: "linear", ID: "proj-1"}
	got := contentSK(res, "issue-42")
	if got != "CONTENT#linear#proj-1#issue-42" {
		t.Errorf("contentSK = %q, want %q", got, "CONTENT#linear#proj-1#issue-42")
	}
}

func TestFactSK(t *testing.T) {
	got := factSK("timezone")
	if got != "FACT#timezone" {
		t.Errorf("factSK = %q, want %q", got, "FACT#timezone")
	}
}

func TestActivitySK_Ordering(t *testing.T) {
	earlier := activitySK(time.UnixMilli(1000), "a")
	later := activitySK(time.UnixMilli(2000), "a")
	if earlier >= later {
		t.Errorf("activitySK does not sort by time: %q >= %q", earlier, later)
	}
	if !strings.HasPrefix(earlier, "ACTIVITY#") {
		t.Errorf("activitySK should start with ACTIVITY#, got %q", earlier)
	}
}

func TestSignalSK(t *testing.T) {
	got := signalSK(types.SignalInactivity, "github/repo-a")
	if got != "SIGNAL#INACTIVITY#github/repo-a" {
		t.Errorf("signalSK = %q, want %q", got, "SIGNAL#INACTIVITY#github/repo-a")
	}
}

func TestDeliverablePK(t *testing.T) {
	got := deliverablePK("weekly-report")
	if got != "DELIVERABLE#weekly-report" {
		t.Errorf("deliverablePK = %q, want %q", got, "DELIVERABLE#weekly-report")
	}
}

func TestVersionSK_Ordering(t *testing.T) {
	// Zero padding keeps lexicographic order numeric.
	if versionSK(9) >= versionSK(10) {
		t.Errorf("versionSK(9) should sort before versionSK(10): %q vs %q", versionSK(9), versionSK(10))
	}
	if versionSK(3) != "VERSION#000003" {
		t.Errorf("versionSK = %q, want %q", versionSK(3), "VERSION#000003")
	}
}

func TestLeasePK(t *testing.T) {
	got := leasePK("sync:acme/github/repo-a")
	if got != "LEASE#sync:acme/github/repo-a" {
		t.Errorf("leasePK = %q, want %q", got, "LEASE#sync:acme/github/repo-a")
	}
}

func TestTTLEpoch(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := ttlEpoch(at); got != at.Unix() {
		t.Errorf("ttlEpoch = %d, want %d", got, at.Unix())
	}
}
