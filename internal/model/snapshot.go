package model

// PoolSnapshot captures a pool's full resumable state.
type PoolSnapshot struct {
	PoolID          string   `json:"pool_id"`
	SpotPrice       string   `json:"spot_price"`
	Delta           string   `json:"delta"`
	Props           string   `json:"props,omitempty"`
	State           string   `json:"state,omitempty"`
	TokenBalance    string   `json:"token_balance"`
	HeldIdentifiers []string `json:"held_identifiers"`
	Paused          bool     `json:"paused"`
	UpdatedAt       string   `json:"updated_at"`
}
