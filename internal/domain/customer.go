package domain

import "time"

// IdentifierType ranks the kinds of contact evidence a channel can supply.
type IdentifierType string

const (
	IdentifierTypeEmail     IdentifierType = "EMAIL"
	IdentifierTypePhone     IdentifierType = "PHONE"
	IdentifierTypeAnonToken IdentifierType = "ANON_TOKEN"
)

// Customer is the stable identity record for one human or organization.
// The id is immutable once assigned.
type Customer struct {
	ID          string
	Email       *string
	Phone       *string
	DisplayName string
	CreatedAt   time.Time
}

// Identifier binds one channel-specific address to a customer. The
// (Type, Value) pair is globally unique; an identifier belongs to exactly
// one customer at a time.
type Identifier struct {
	ID         string
	CustomerID string
	Type       IdentifierType
	Value      string
	Verified   bool
	CreatedAt  time.Time
}

// ContactEvidence carries whatever addressing information an inbound event
// exposed. At least one field must be set for identity resolution.
type ContactEvidence struct {
	Email     string
	Phone     string
	AnonToken string
}

// Empty reports whether no evidence is present.
func (e ContactEvidence) Empty() bool {
	return e.Email == "" && e.Phone == "" && e.AnonToken == ""
}

// Strongest returns the highest-ranked identifier the evidence supports:
// email over phone over anonymous token.
func (e ContactEvidence) Strongest() (IdentifierType, string, bool) {
	switch {
	case e.Email != "":
		return IdentifierTypeEmail, e.Email, true
	case e.Phone != "":
		return IdentifierTypePhone, e.Phone, true
	case e.AnonToken != "":
		return IdentifierTypeAnonToken, e.AnonToken, true
	default:
		return "", "", false
	}
}
