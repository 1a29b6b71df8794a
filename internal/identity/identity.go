package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// Identity is the subject a quota row is keyed by: exactly one of an
// authenticated user ID or an anonymous caller's network address.
type Identity struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	IP     string     `json:"ip_address,omitempty"`
	Tier   string     `json:"tier"`
}

// User builds an authenticated identity.
func User(id uuid.UUID, tier string) Identity {
	return Identity{UserID: &id, Tier: tier}
}

// Anonymous builds an identity keyed by network address.
func Anonymous(ip, tier string) Identity {
	return Identity{IP: ip, Tier: tier}
}

// IsAnonymous reports whether the identity has no user attached.
func (i Identity) IsAnonymous() bool {
	return i.UserID == nil
}

// Key returns a stable string key for logs, Redis keys and event payloads.
func (i Identity) Key() string {
	if i.UserID != nil {
		return "user:" + i.UserID.String()
	}
	return "ip:" + i.IP
}

func (i Identity) String() string {
	return fmt.Sprintf("%s (%s)", i.Key(), i.Tier)
}
