// Package orchestrator runs beatmap set analyses for a single client.
//
// Loads of the shared beatmap set are serialized, analyses fan out
// concurrently, and every analysis checks before and after its expensive
// step whether the set it started on is still the active one. Results for a
// superseded set are dropped instead of being published.
package orchestrator

import (
	"context"
	"html"
)

// Kind identifies an analysis view and tags its outbound messages.
type Kind int

// Analysis kinds.
const (
	KindChecks Kind = iota
	KindSnapshots
	KindOverview
	KindDocumentation
	KindOverlay
)

// String returns the wire tag of the kind.
func (k Kind) String() string {
	switch k {
	case KindChecks:
		return "Checks"
	case KindSnapshots:
		return "Snapshots"
	case KindOverview:
		return "Overview"
	case KindDocumentation:
		return "Documentation"
	case KindOverlay:
		return "Overlay"
	default:
		return "Unknown"
	}
}

// Inbound message keys.
const (
	KeyRequestDocumentation = "RequestDocumentation"
	KeyRequestOverlay       = "RequestOverlay"
	KeyRequestBeatmapset    = "RequestBeatmapset"
)

// Outbound message keys.
const (
	KeyUpdateDocumentation = "UpdateDocumentation"
	KeyUpdateOverlay       = "UpdateOverlay"
	KeyUpdateChecks        = "UpdateChecks"
	KeyUpdateSnapshots     = "UpdateSnapshots"
	KeyUpdateOverview      = "UpdateOverview"
	KeyUpdateException     = "UpdateException"
	KeyAddLoad             = "AddLoad"
	KeyRemoveLoad          = "RemoveLoad"
)

// UpdateKey returns the outbound key carrying results for kind.
func UpdateKey(kind Kind) string {
	return "Update" + kind.String()
}

// Message is a single keyed frame exchanged with the client.
type Message struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Sender delivers outbound messages to the client.
// Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Tagged prefixes a value with the kind tag: "<Kind>:<body>".
func Tagged(kind Kind, body string) string {
	return kind.String() + ":" + body
}

func loadMessage(key string, kind Kind, label string) Message {
	return Message{Key: key, Value: Tagged(kind, html.EscapeString(label))}
}
