// Package session models the multi-account browser session: which addresses
// are logged in, which one is active, and the per-session CSRF token and
// activity markers. All operations are pure state transitions; persisting the
// state into a signed cookie is the auth package's job.
package session

import (
	"errors"
	"slices"
	"time"
)

// ErrAccountNotInSession is returned when a switch targets an address that is
// not logged in to this session. Callers must surface it; silently staying on
// the old account is a correctness hazard for a multi-account UI.
var ErrAccountNotInSession = errors.New("account is not logged in to this session")

// State is the full session payload carried in the cookie. Accounts keeps
// login order and holds no duplicates; Active, when set, is always a member
// of Accounts.
type State struct {
	Active       string    `json:"active,omitempty"`
	Accounts     []string  `json:"accounts,omitempty"`
	CSRFToken    string    `json:"csrf,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	LastCheck    time.Time `json:"last_check,omitempty"`
}

// Authenticated reports whether the session has an active address.
func (s *State) Authenticated() bool {
	return s.Active != ""
}

// Login records a successful authentication. A normal login discards the
// entire previous session and leaves address as the only account. In add
// mode the address joins the existing set (no duplicate) and becomes active
// while the others stay logged in.
func (s *State) Login(address string, addMode bool) {
	if !addMode {
		*s = State{Active: address, Accounts: []string{address}}
		return
	}
	if !slices.Contains(s.Accounts, address) {
		s.Accounts = append(s.Accounts, address)
	}
	s.Active = address
}

// SwitchActive makes address the active account. It fails with
// ErrAccountNotInSession when the address is not logged in, leaving the
// active address unchanged.
func (s *State) SwitchActive(address string) error {
	if !slices.Contains(s.Accounts, address) {
		return ErrAccountNotInSession
	}
	s.Active = address
	return nil
}

// LogoutOne removes address from the session. When the active account logs
// out, the first remaining account in login order takes over, or the session
// becomes unauthenticated if none remain.
func (s *State) LogoutOne(address string) {
	if i := slices.Index(s.Accounts, address); i >= 0 {
		s.Accounts = slices.Delete(s.Accounts, i, i+1)
	}
	if s.Active != address {
		return
	}
	if len(s.Accounts) > 0 {
		s.Active = s.Accounts[0]
	} else {
		s.Active = ""
	}
}

// LogoutAll clears every account and the active pointer.
func (s *State) LogoutAll() {
	*s = State{}
}
