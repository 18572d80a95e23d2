package alert

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/driftline-systems/driftline/pkg/types"
)

// ConsoleSink writes alerts to the terminal with color-coded severity.
type ConsoleSink struct {
	out io.Writer
}

// NewConsoleSink creates a console sink writing to stdout.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes one line per alert: severity, tenant/platform scope, subject,
// message.
func (s *ConsoleSink) Send(alert types.Alert) error {
	var prefix string
	switch alert.Level {
	case types.AlertLevelError:
		prefix = color.RedString("[ERROR]")
	case types.AlertLevelWarning:
		prefix = color.YellowString("[WARN]")
	default:
		prefix = color.CyanString("[INFO]")
	}

	var b strings.Builder
	b.WriteString(prefix)
	if scope := alertScope(alert); scope != "" {
		fmt.Fprintf(&b, " [%s]", scope)
	}
	if alert.Subject != "" {
		fmt.Fprintf(&b, " %s:", alert.Subject)
	}
	fmt.Fprintf(&b, " %s\n", alert.Message)

	_, err := io.WriteString(s.out, b.String())
	return err
}

// alertScope renders the tenant/platform qualifier of an alert.
func alertScope(alert types.Alert) string {
	switch {
	case alert.TenantID != "" && alert.Platform != "":
		return alert.TenantID + "/" + alert.Platform
	case alert.TenantID != "":
		return alert.TenantID
	case alert.Platform != "":
		return alert.Platform
	}
	return ""
}
