package identity

import (
	"errors"
	"regexp"
	"time"
)

// emailPattern is a pragmatic format check; deliverability is the email
// sender's problem, not ours.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// maxEmailLength is the maximum allowed email address length.
const maxEmailLength = 254

// minPasswordLength is the minimum allowed password length.
const minPasswordLength = 8

// IsValidEmail checks if an email address meets format requirements.
func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// IsValidPassword checks if a password meets the minimum length requirement.
func IsValidPassword(password string) bool {
	return len(password) >= minPasswordLength
}

// Account represents a credentialed login identity. Accounts carry no
// tenant or role information; that lives in the profile store.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is the result of validating an access token. It is immutable
// for the lifetime of the request that resolved it.
type Session struct {
	Token     string    `json:"-"`
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TimeToExpiry returns how long the session remains valid from now.
func (s *Session) TimeToExpiry() time.Duration {
	return time.Until(s.ExpiresAt)
}

// Credential is the pair of tokens issued at login, registration, and
// refresh. AccessToken is what the session cookie carries; RefreshToken
// is exchanged for a new pair when the access token nears expiry.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SubjectID    string    `json:"subject_id"`
	Email        string    `json:"email"`
}

// RefreshToken represents a stored refresh token for session management.
type RefreshToken struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	FamilyID  string    `json:"family_id"`
	TokenHash string    `json:"-"` // never serialised
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors for identity operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrEmailExists        = errors.New("email already registered")
	ErrSessionExpired     = errors.New("session has expired")
	ErrSessionInvalid     = errors.New("invalid session")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenReuse         = errors.New("refresh token reuse detected")
)
