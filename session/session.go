// Package session persists the authenticated state of the current user and
// the callback handoff packet in host storage.
//
// Every field is an independent storage entry, so readers always see a
// snapshot and there is no multi-key transaction: a missing or malformed
// entry simply reads as absent.
package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/axa-poc/portalauth/browser"
	"github.com/hashicorp/go-multierror"
)

// Durable storage keys.
const (
	AccessTokenKey = "access_token"
	IdTokenKey     = "id_token"
	ExpiresAtKey   = "expires_at"
	ProfileKey     = "user_profile"
	RoleKey        = "user_role"
)

// Role is the role claim category a user belongs to.
type Role string

const (
	RoleAxaInternal Role = "axa-internal"
	RoleBroker      Role = "broker"
	RoleCustomer    Role = "customer"

	// DefaultRole is used whenever no role is known.
	DefaultRole = RoleCustomer
)

// Roles returns the known roles.
func Roles() []Role {
	return []Role{RoleAxaInternal, RoleBroker, RoleCustomer}
}

// Known reports whether r is one of the known roles.
func (r Role) Known() bool {
	switch r {
	case RoleAxaInternal, RoleBroker, RoleCustomer:
		return true
	default:
		return false
	}
}

// Session is the authenticated state for the current user.  Zero values
// mean absent.
type Session struct {
	AccessToken string
	IdToken     string
	ExpiresAt   time.Time
	Role        Role
	Profile     map[string]interface{}
}

// Authenticated reports whether the session is usable at now: both tokens
// are present and ExpiresAt is strictly after now.
func (s Session) Authenticated(now time.Time) bool {
	if s.AccessToken == "" || s.IdToken == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return s.ExpiresAt.After(now)
}

// Store reads and writes a Session in durable storage.
type Store struct {
	storage browser.Storage
}

// NewStore creates a Store over durable storage.
func NewStore(s browser.Storage) (*Store, error) {
	const op = "session.NewStore"
	if s == nil {
		return nil, fmt.Errorf("%s: storage is nil: %w", op, ErrNilParameter)
	}
	return &Store{storage: s}, nil
}

// Save writes the tokens and expiry of s, plus its role and profile when
// they are set.  Fields are written one entry at a time; the first failure
// stops the save.
func (st *Store) Save(s Session) error {
	const op = "session.(Store).Save"
	if s.ExpiresAt.IsZero() {
		return fmt.Errorf("%s: expiry is missing: %w", op, ErrInvalidParameter)
	}
	entries := []struct{ k, v string }{
		{AccessTokenKey, s.AccessToken},
		{IdTokenKey, s.IdToken},
		{ExpiresAtKey, strconv.FormatInt(s.ExpiresAt.UnixMilli(), 10)},
	}
	for _, e := range entries {
		if err := st.storage.SetItem(e.k, e.v); err != nil {
			return fmt.Errorf("%s: unable to write %s: %w", op, e.k, err)
		}
	}
	if s.Role != "" {
		if err := st.SetRole(s.Role); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if s.Profile != nil {
		if err := st.SetProfile(s.Profile); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// SetRole writes the resolved role.
func (st *Store) SetRole(r Role) error {
	const op = "session.(Store).SetRole"
	if err := st.storage.SetItem(RoleKey, string(r)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetProfile writes the user profile as JSON.
func (st *Store) SetProfile(p map[string]interface{}) error {
	const op = "session.(Store).SetProfile"
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%s: unable to encode profile: %w", op, err)
	}
	if err := st.storage.SetItem(ProfileKey, string(data)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Read returns the stored Session.  Missing or malformed entries are left
// at their zero value.
func (st *Store) Read() Session {
	var s Session
	s.AccessToken, _ = st.storage.GetItem(AccessTokenKey)
	s.IdToken, _ = st.storage.GetItem(IdTokenKey)
	if v, ok := st.storage.GetItem(ExpiresAtKey); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			s.ExpiresAt = time.UnixMilli(ms)
		}
	}
	if v, ok := st.storage.GetItem(RoleKey); ok {
		s.Role = Role(v)
	}
	if v, ok := st.storage.GetItem(ProfileKey); ok {
		var p map[string]interface{}
		if err := json.Unmarshal([]byte(v), &p); err == nil {
			s.Profile = p
		}
	}
	return s
}

// Role returns the stored role, or DefaultRole when none is stored.
func (st *Store) Role() Role {
	if v, ok := st.storage.GetItem(RoleKey); ok && v != "" {
		return Role(v)
	}
	return DefaultRole
}

// Clear removes every session entry.  All entries are attempted and every
// failure is reported.
func (st *Store) Clear() error {
	const op = "session.(Store).Clear"
	var retErr *multierror.Error
	for _, k := range []string{AccessTokenKey, IdTokenKey, ExpiresAtKey, ProfileKey, RoleKey} {
		if err := st.storage.RemoveItem(k); err != nil {
			retErr = multierror.Append(retErr, fmt.Errorf("%s: unable to remove %s: %w", op, k, err))
		}
	}
	return retErr.ErrorOrNil()
}
