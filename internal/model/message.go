// Package model contains the message types stored and indexed by scuttlestore.
package model

import (
	"encoding/json"
	"strings"
)

// MessageValue is the signed inner object of a message. Author and Sequence
// are the only fields the index needs; everything else rides along in Raw so
// the value can be returned byte-faithfully.
type MessageValue struct {
	Author   string `json:"author"`
	Sequence int64  `json:"sequence"`

	// Raw holds the complete value object as it appeared in the log entry.
	Raw json.RawMessage `json:"-"`
}

// Message is the envelope written to the offset log: a content-addressed key
// plus the signed value.
type Message struct {
	Key   string       `json:"key"`
	Value MessageValue `json:"value"`
}

// envelope mirrors the wire shape of a message for decoding.
type envelope struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// DecodeMessage parses a log entry into a Message. It returns ok=false for
// entries that are not messages at all (for example zeroed-out deleted
// records); those are skipped by the indexer rather than treated as errors.
func DecodeMessage(data []byte) (*Message, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	if env.Key == "" || len(env.Value) == 0 {
		return nil, false
	}

	var val MessageValue
	if err := json.Unmarshal(env.Value, &val); err != nil {
		return nil, false
	}
	if val.Author == "" || val.Sequence < 1 {
		return nil, false
	}
	val.Raw = env.Value

	return &Message{Key: env.Key, Value: val}, true
}

// IsMessageKey reports whether s looks like a content-addressed message key
// ("%" sigil, base64 digest, ".sha256" suffix).
func IsMessageKey(s string) bool {
	return strings.HasPrefix(s, "%") && strings.HasSuffix(s, ".sha256") && len(s) > len("%.sha256")
}

// IsFeedRef reports whether s looks like a feed reference
// ("@" sigil, base64 public key, ".ed25519" suffix).
func IsFeedRef(s string) bool {
	return strings.HasPrefix(s, "@") && strings.HasSuffix(s, ".ed25519") && len(s) > len("@.ed25519")
}
