package authstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/novadent/clinic-core/internal/identity"
	"github.com/novadent/clinic-core/internal/profile"
)

// ErrOperationInFlight is returned to a caller whose mutating operation
// was rejected because another one is still running. It is surfaced
// only to that caller; the machine's state is unaffected.
var ErrOperationInFlight = errors.New("authstate: another operation is in flight")

// Status is the lifecycle phase of the client session.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
	StatusError         Status = "error"
)

// State is an immutable snapshot of the client session. Transitions
// replace the snapshot wholesale; callers must never mutate one.
type State struct {
	Status  Status
	Session *identity.Session
	Profile *profile.Profile

	// Err carries the user-facing failure from the last operation.
	// Set alongside StatusAnonymous for credential failures and
	// alongside StatusError for unexpected ones.
	Err error
}

// Authenticated reports whether the snapshot represents a signed-in
// caller with a resolvable profile.
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Session != nil
}

// Listener receives every published snapshot. Called synchronously
// under the transition, so implementations must not call back into the
// machine's mutating operations.
type Listener func(State)

// Machine is the client authentication state machine. One instance per
// client session; construct with New and tear down with Close.
type Machine struct {
	provider identity.Provider
	profiles profile.Repository

	mu       sync.Mutex
	state    State
	cred     *identity.Credential
	inFlight bool
	gen      uint64
	closed   bool
	listener Listener
}

// New creates a machine in the uninitialized state.
func New(provider identity.Provider, profiles profile.Repository) (*Machine, error) {
	if provider == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	return &Machine{
		provider: provider,
		profiles: profiles,
		state:    State{Status: StatusUninitialized},
	}, nil
}

// Current returns the latest snapshot. Always non-blocking.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers the listener notified on every transition,
// replacing any previous one.
func (m *Machine) Subscribe(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

// Close tears the machine down. Any in-flight operation's completion is
// dropped instead of applied.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.gen++
}

// ClearError clears the surfaced error without changing status.
func (m *Machine) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Err == nil {
		return
	}
	next := m.state
	next.Err = nil
	m.publishLocked(next)
}

// Initialize resolves an existing session on first mount. No session is
// a normal anonymous outcome, not an error.
func (m *Machine) Initialize(ctx context.Context, token string) error {
	gen, _, err := m.begin()
	if err != nil {
		return err
	}

	if token == "" {
		m.finish(gen, State{Status: StatusAnonymous}, nil)
		return nil
	}

	sess, err := m.provider.ValidateSession(ctx, token)
	switch {
	case err == nil:
		prof := m.lookupProfile(ctx, sess.SubjectID)
		m.finish(gen, State{Status: StatusAuthenticated, Session: sess, Profile: prof}, nil)
		return nil
	case errors.Is(err, identity.ErrSessionExpired), errors.Is(err, identity.ErrSessionInvalid):
		m.finish(gen, State{Status: StatusAnonymous}, nil)
		return nil
	default:
		m.finish(gen, State{Status: StatusError, Err: err}, nil)
		return err
	}
}

// Login exchanges credentials for a session. Invalid credentials leave
// the machine anonymous with the error surfaced inline; unexpected
// failures transition to the error state.
func (m *Machine) Login(ctx context.Context, email, password string) error {
	gen, _, err := m.begin()
	if err != nil {
		return err
	}

	cred, err := m.provider.ExchangeCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			m.finish(gen, State{Status: StatusAnonymous, Err: err}, nil)
		} else {
			m.finish(gen, State{Status: StatusError, Err: err}, nil)
		}
		return err
	}

	sess := sessionFromCredential(cred)
	prof := m.lookupProfile(ctx, cred.SubjectID)
	m.finish(gen, State{Status: StatusAuthenticated, Session: sess, Profile: prof}, cred)
	return nil
}

// Register creates an account and provisions its profile. If profile
// provisioning fails after the credential was issued, the caller is
// left anonymous with the error surfaced; a session without a
// resolvable profile is never presented as authenticated.
func (m *Machine) Register(ctx context.Context, email, password string, prof *profile.Profile) error {
	gen, _, err := m.begin()
	if err != nil {
		return err
	}

	cred, err := m.provider.CreateAccount(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailExists) || errors.Is(err, identity.ErrInvalidCredentials) {
			m.finish(gen, State{Status: StatusAnonymous, Err: err}, nil)
		} else {
			m.finish(gen, State{Status: StatusError, Err: err}, nil)
		}
		return err
	}

	prof.SubjectID = cred.SubjectID
	if err := m.profiles.Create(ctx, prof); err != nil {
		err = fmt.Errorf("provisioning profile: %w", err)
		m.finish(gen, State{Status: StatusAnonymous, Err: err}, nil)
		return err
	}

	m.finish(gen, State{Status: StatusAuthenticated, Session: sessionFromCredential(cred), Profile: prof}, cred)
	return nil
}

// Logout invalidates the session. Local state always clears to
// anonymous, even when the remote invalidation fails.
func (m *Machine) Logout(ctx context.Context) error {
	gen, _, err := m.begin()
	if err != nil {
		return err
	}

	var remoteErr error
	m.mu.Lock()
	cred := m.cred
	m.mu.Unlock()
	if cred != nil && cred.RefreshToken != "" {
		remoteErr = m.provider.Invalidate(ctx, cred.RefreshToken)
	}

	m.finish(gen, State{Status: StatusAnonymous}, nil)
	return remoteErr
}

// Refresh rotates the credential pair and keeps the caller
// authenticated. A failed rotation drops to anonymous.
func (m *Machine) Refresh(ctx context.Context) error {
	gen, prev, err := m.begin()
	if err != nil {
		return err
	}

	m.mu.Lock()
	cred := m.cred
	m.mu.Unlock()
	prof := prev.Profile
	if cred == nil || cred.RefreshToken == "" {
		m.finish(gen, State{Status: StatusAnonymous}, nil)
		return identity.ErrSessionInvalid
	}

	next, err := m.provider.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		m.finish(gen, State{Status: StatusAnonymous, Err: err}, nil)
		return err
	}

	m.finish(gen, State{Status: StatusAuthenticated, Session: sessionFromCredential(next), Profile: prof}, next)
	return nil
}

// UpdateProfile applies a partial profile update. Status is unchanged;
// only the profile on the snapshot is replaced.
func (m *Machine) UpdateProfile(ctx context.Context, patch profile.Patch) error {
	gen, prev, err := m.begin()
	if err != nil {
		return err
	}

	if prev.Session == nil {
		m.finish(gen, withStatus(prev, prev.Status), nil)
		return identity.ErrSessionInvalid
	}

	updated, err := m.profiles.Update(ctx, prev.Session.SubjectID, patch)
	if err != nil {
		next := prev
		next.Err = err
		m.finish(gen, withStatus(next, prev.Status), nil)
		return err
	}

	next := prev
	next.Profile = updated
	next.Err = nil
	m.finish(gen, withStatus(next, prev.Status), nil)
	return nil
}

// UpdatePassword changes the account password. All refresh tokens are
// revoked server-side, so the machine drops to anonymous on success and
// the caller signs in again.
func (m *Machine) UpdatePassword(ctx context.Context, current, next string) error {
	gen, prev, err := m.begin()
	if err != nil {
		return err
	}

	if prev.Session == nil {
		m.finish(gen, withStatus(prev, prev.Status), nil)
		return identity.ErrSessionInvalid
	}

	if err := m.provider.UpdatePassword(ctx, prev.Session.SubjectID, current, next); err != nil {
		st := prev
		st.Err = err
		m.finish(gen, withStatus(st, prev.Status), nil)
		return err
	}

	m.finish(gen, State{Status: StatusAnonymous}, nil)
	return nil
}

// begin acquires the in-flight gate and publishes the loading state.
// Returns the generation this operation belongs to and the snapshot
// that was current before the loading transition.
func (m *Machine) begin() (uint64, State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, State{}, fmt.Errorf("authstate: machine is closed")
	}
	if m.inFlight {
		return 0, State{}, ErrOperationInFlight
	}
	m.inFlight = true
	m.gen++
	prev := m.state

	loading := prev
	loading.Status = StatusLoading
	loading.Err = nil
	m.publishLocked(loading)
	return m.gen, prev, nil
}

// finish applies the operation's result unless a newer generation has
// superseded it, in which case the completion is dropped.
func (m *Machine) finish(gen uint64, next State, cred *identity.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.closed {
		return
	}
	m.inFlight = false
	if next.Status == StatusAuthenticated {
		if cred != nil {
			m.cred = cred
		}
	} else {
		m.cred = nil
	}
	m.publishLocked(next)
}

// publishLocked replaces the snapshot and notifies the listener.
// Caller holds m.mu.
func (m *Machine) publishLocked(next State) {
	m.state = next
	if m.listener != nil {
		m.listener(next)
	}
}

func (m *Machine) lookupProfile(ctx context.Context, subjectID string) *profile.Profile {
	prof, err := m.profiles.Get(ctx, subjectID)
	if err != nil {
		return nil
	}
	return prof
}

func sessionFromCredential(cred *identity.Credential) *identity.Session {
	return &identity.Session{
		Token:     cred.AccessToken,
		SubjectID: cred.SubjectID,
		Email:     cred.Email,
		ExpiresAt: cred.ExpiresAt,
	}
}

// withStatus restores the pre-operation status after the loading phase,
// used by operations that do not change status.
func withStatus(s State, status Status) State {
	s.Status = status
	return s
}
