package signing

import "strings"

// CanonicalStatus is the provider-agnostic signature lifecycle value.
// pending -> sent -> signed -> completed, with failed reachable from
// any non-terminal state. completed and failed are terminal.
type CanonicalStatus string

const (
	StatusPending   CanonicalStatus = "pending"
	StatusSent      CanonicalStatus = "sent"
	StatusSigned    CanonicalStatus = "signed"
	StatusCompleted CanonicalStatus = "completed"
	StatusFailed    CanonicalStatus = "failed"
)

// IsTerminal reports whether no further transition may leave s.
func (s CanonicalStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Service keys understood by the normalizer.
const (
	ServiceScrive   = "scrive"
	ServiceDocusign = "docusign"
	ServiceSelfSign = "selfsign"
)

// scriveStatusMap translates Scrive document statuses. Loaded once,
// never mutated at runtime.
var scriveStatusMap = map[string]CanonicalStatus{
	"pending":     StatusPending,
	"preparation": StatusPending,
	"sent":        StatusSent,
	"delivered":   StatusSent,
	"opened":      StatusSent,
	"signed":      StatusSigned,
	"closed":      StatusCompleted,
	"rejected":    StatusFailed,
	"timedout":    StatusFailed,
	"expired":     StatusFailed,
	"error":       StatusFailed,
}

// Normalize maps a provider's raw status to the canonical lifecycle.
// Total: unmapped raw values pass through lowercased rather than
// failing. Self-sign completes synchronously, so every raw value for
// it normalizes to completed.
func Normalize(service, rawStatus string) CanonicalStatus {
	raw := strings.ToLower(strings.TrimSpace(rawStatus))

	switch service {
	case ServiceSelfSign:
		return StatusCompleted
	case ServiceScrive:
		if mapped, ok := scriveStatusMap[raw]; ok {
			return mapped
		}
		return CanonicalStatus(raw)
	case ServiceDocusign:
		return CanonicalStatus(raw)
	default:
		return CanonicalStatus(raw)
	}
}
