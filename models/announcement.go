package models

// Announcement is a periodically republished capability advertisement for a DVM
// worker. LastSeen, not the event's created_at, is the freshness clock used
// when merging announcements from the same publisher.
type Announcement struct {
	Pubkey         string   `json:"pubkey"`
	Name           string   `json:"name"`
	About          string   `json:"about,omitempty"`
	SupportedKinds []int    `json:"supported_kinds"`
	OutputModes    []string `json:"output_modes,omitempty"`
	Relays         []string `json:"relays,omitempty"`
	Operator       string   `json:"operator,omitempty"`
	LastSeen       int64    `json:"last_seen"`
}
