package models

import "encoding/json"

// AdminRequest is the encrypted payload of an admin RPC event. Id is a fresh
// random correlation token generated per call.
type AdminRequest struct {
	Id     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// AdminResponse correlates back to an AdminRequest by payload id, never by
// transport event id. Exactly one of Result/Error is populated.
type AdminResponse struct {
	Id     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
