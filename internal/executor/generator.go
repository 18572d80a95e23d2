package executor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/driftline-systems/driftline/pkg/types"
)

// DigestGenerator is the built-in Generator: a deterministic plain-text
// digest of the gathered sources and facts. Deployments plug in their own
// Generator for model-backed generation.
type DigestGenerator struct{}

// NewDigestGenerator creates the built-in digest generator.
func NewDigestGenerator() *DigestGenerator {
	return &DigestGenerator{}
}

// Generate renders the request into a sectioned text digest.
func (g *DigestGenerator) Generate(_ context.Context, req types.GenerationRequest) (types.GenerationOutput, error) {
	var b strings.Builder

	if req.Prompt != "" {
		b.WriteString(req.Prompt)
		b.WriteString("\n\n")
	}

	if len(req.Facts) > 0 {
		b.WriteString("Context:\n")
		for _, fact := range req.Facts {
			fmt.Fprintf(&b, "- %s: %s\n", fact.Key, fact.Value)
		}
		b.WriteString("\n")
	}

	byResource := map[string][]types.ContentItem{}
	var order []string
	for _, item := range req.Items {
		key := item.Resource.Platform + "/" + item.Resource.ID
		if _, seen := byResource[key]; !seen {
			order = append(order, key)
		}
		byResource[key] = append(byResource[key], item)
	}

	for _, key := range order {
		fmt.Fprintf(&b, "## %s\n", key)
		for _, item := range byResource[key] {
			payload := truncate(strings.TrimSpace(item.Payload), 500)
			fmt.Fprintf(&b, "- %s: %s\n", item.ItemID, payload)
		}
		b.WriteString("\n")
	}

	if len(req.Items) == 0 {
		b.WriteString("No new items across tracked sources.\n")
	}

	return types.GenerationOutput{
		Text: b.String(),
		Metadata: map[string]interface{}{
			"items":   len(req.Items),
			"sources": len(order),
		},
	}, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
