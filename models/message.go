package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Tag is an ordered list of strings whose first element is the tag name.
type Tag []string

func (t Tag) Name() string {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

func (t Tag) Value() string {
	if len(t) > 1 {
		return t[1]
	}
	return ""
}

// Event is the fundamental transport unit, immutable once signed. The engine
// treats Id as an opaque deduplication key; id/signature verification is the
// transport layer's responsibility.
type Event struct {
	Id        string `json:"id"`
	Pubkey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// TagValue returns the second element of the first tag with the given name.
func (e *Event) TagValue(name string) (string, bool) {
	for _, tag := range e.Tags {
		if tag.Name() == name {
			return tag.Value(), true
		}
	}
	return "", false
}

// TagValues returns the second elements of every tag with the given name.
func (e *Event) TagValues(name string) []string {
	values := make([]string, 0)
	for _, tag := range e.Tags {
		if tag.Name() == name {
			values = append(values, tag.Value())
		}
	}
	return values
}

func (e *Event) HasTag(name string) bool {
	_, found := e.TagValue(name)
	return found
}

// Serialize produces the canonical form the event id is derived from.
func (e *Event) Serialize() ([]byte, error) {
	return json.Marshal([]any{0, e.Pubkey, e.CreatedAt, e.Kind, e.Tags, e.Content})
}

// ComputeId returns the hex sha256 digest of the canonical serialization.
func (e *Event) ComputeId() (string, error) {
	serialized, err := e.Serialize()
	if err != nil {
		return "", fmt.Errorf("serializing event: %w", err)
	}
	digest := sha256.Sum256(serialized)
	return hex.EncodeToString(digest[:]), nil
}
