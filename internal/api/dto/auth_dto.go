package dto

import "time"

// OperatorLoginRequest payload for operator login.
type OperatorLoginRequest struct {
	Operator string `json:"operator"`
	Key      string `json:"key"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
