package models

import (
	"encoding/json"
	"testing"
)

func TestSerializeCanonicalForm(t *testing.T) {
	event := &Event{
		Pubkey:    "author",
		CreatedAt: 1700000000,
		Kind:      KindJobStatus,
		Tags:      []Tag{{TagReference, "ref"}},
		Content:   "payload",
	}
	serialized, err := event.Serialize()
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	expected := `[0,"author",1700000000,7000,[["e","ref"]],"payload"]`
	if string(serialized) != expected {
		t.Errorf("Incorrect canonical form: expected %s, actual %s", expected, serialized)
	}
}

func TestComputeIdIgnoresSigAndId(t *testing.T) {
	event := &Event{
		Pubkey:    "author",
		CreatedAt: 1700000000,
		Kind:      KindJobStatus,
		Tags:      []Tag{},
		Content:   "payload",
	}
	first, err := event.ComputeId()
	if err != nil {
		t.Fatalf("Failed to compute id: %v", err)
	}
	event.Id = "bogus"
	event.Sig = "bogus"
	second, err := event.ComputeId()
	if err != nil {
		t.Fatalf("Failed to compute id: %v", err)
	}
	if first != second {
		t.Error("Id changed when only id/sig fields changed")
	}

	event.Content = "different payload"
	third, err := event.ComputeId()
	if err != nil {
		t.Fatalf("Failed to compute id: %v", err)
	}
	if first == third {
		t.Error("Id did not change with the content")
	}
	if len(first) != 64 {
		t.Errorf("Expected a 32-byte hex digest, got %d chars", len(first))
	}
}

func TestTagAccessors(t *testing.T) {
	event := &Event{
		Tags: []Tag{
			{TagRecipient, "worker-1"},
			{TagKind, "5204"},
			{TagKind, "5205"},
			{TagEncrypted},
		},
	}
	if value, found := event.TagValue(TagRecipient); !found || value != "worker-1" {
		t.Errorf("Incorrect recipient tag: %q, %v", value, found)
	}
	if _, found := event.TagValue("nope"); found {
		t.Error("Found a tag that does not exist")
	}
	kinds := event.TagValues(TagKind)
	if len(kinds) != 2 || kinds[0] != "5204" || kinds[1] != "5205" {
		t.Errorf("Incorrect kind tag values: %v", kinds)
	}
	if !event.HasTag(TagEncrypted) {
		t.Error("Value-less tag not found by name")
	}
	if (Tag{TagEncrypted}).Value() != "" {
		t.Error("Value-less tag should report an empty value")
	}
}

func TestEventJsonRoundTrip(t *testing.T) {
	data := `{"id":"abc","pubkey":"def","created_at":1700000000,"kind":6204,"tags":[["e","ref"],["p","op"]],"content":"{}","sig":"00"}`
	event := new(Event)
	if err := json.Unmarshal([]byte(data), event); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if event.Kind != KindJobResult {
		t.Errorf("Incorrect kind: %d", event.Kind)
	}
	if ref, _ := event.TagValue(TagReference); ref != "ref" {
		t.Errorf("Incorrect reference tag: %q", ref)
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	decoded := new(Event)
	if err = json.Unmarshal(encoded, decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if decoded.Id != event.Id || decoded.CreatedAt != event.CreatedAt {
		t.Error("Round trip lost fields")
	}
}
