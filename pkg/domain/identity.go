package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IdentityKind tags the two identity spaces a balance can be keyed under.
type IdentityKind string

const (
	// KindUser is a stable identifier issued by the authentication provider.
	KindUser IdentityKind = "user"
	// KindDevice is an anonymous device token carried in a signed cookie.
	KindDevice IdentityKind = "device"
)

// Identity is a tagged union over the two identity spaces. Exactly one of
// UserID or DeviceToken is set, selected by Kind. A balance row is keyed by
// exactly one Identity, never both spaces at once.
type Identity struct {
	Kind        IdentityKind
	UserID      uuid.UUID
	DeviceToken string
}

// UserIdentity builds an Identity for an authenticated user.
func UserIdentity(userID uuid.UUID) Identity {
	return Identity{Kind: KindUser, UserID: userID}
}

// DeviceIdentity builds an Identity for an anonymous device token.
func DeviceIdentity(token string) Identity {
	return Identity{Kind: KindDevice, DeviceToken: token}
}

// IsZero reports whether no identity has been resolved.
func (i Identity) IsZero() bool {
	switch i.Kind {
	case KindUser:
		return i.UserID == uuid.Nil
	case KindDevice:
		return i.DeviceToken == ""
	default:
		return true
	}
}

// IsUser reports whether the identity belongs to an authenticated user.
func (i Identity) IsUser() bool {
	return i.Kind == KindUser && i.UserID != uuid.Nil
}

// Key returns the canonical storage key, e.g. "user:<uuid>" or
// "device:<token>". All balance rows, transactions and dedup records are
// keyed by this value.
func (i Identity) Key() string {
	switch i.Kind {
	case KindUser:
		return "user:" + i.UserID.String()
	case KindDevice:
		return "device:" + i.DeviceToken
	default:
		return ""
	}
}

// String implements fmt.Stringer; identical to Key.
func (i Identity) String() string {
	return i.Key()
}

// ParseIdentityKey reverses Key. It rejects keys that do not carry a known
// kind prefix or whose payload is malformed, so stored keys always round-trip
// into a valid tagged value.
func ParseIdentityKey(s string) (Identity, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return Identity{}, fmt.Errorf("malformed identity key: %q", s)
	}
	switch IdentityKind(kind) {
	case KindUser:
		userID, err := uuid.Parse(rest)
		if err != nil {
			return Identity{}, fmt.Errorf("malformed user identity key: %w", err)
		}
		return UserIdentity(userID), nil
	case KindDevice:
		return DeviceIdentity(rest), nil
	default:
		return Identity{}, fmt.Errorf("unknown identity kind: %q", kind)
	}
}
