package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider is the identity provider contract consumed by the gateway and
// the auth handlers. Implementations own credential verification and
// session token lifecycles; callers never inspect token bytes.
type Provider interface {
	// ValidateSession checks an access token and returns the session it
	// represents. Returns ErrSessionExpired for expired tokens and
	// ErrSessionInvalid for anything else that fails.
	ValidateSession(ctx context.Context, token string) (*Session, error)

	// ExchangeCredentials verifies an email/password pair and issues a
	// fresh credential. Returns ErrInvalidCredentials on any mismatch.
	ExchangeCredentials(ctx context.Context, email, password string) (*Credential, error)

	// CreateAccount registers a new account and issues its first credential.
	CreateAccount(ctx context.Context, email, password string) (*Credential, error)

	// Refresh exchanges a refresh token for a new credential pair,
	// rotating the refresh token. Reuse of an already-rotated token
	// revokes the whole family and returns ErrTokenReuse.
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)

	// Invalidate revokes the refresh token family backing a session.
	Invalidate(ctx context.Context, refreshToken string) error

	// UpdatePassword verifies the current password and replaces it,
	// revoking all outstanding refresh tokens for the account.
	UpdatePassword(ctx context.Context, subjectID, current, next string) error
}

// LocalProvider is the SQLite-backed Provider implementation.
type LocalProvider struct {
	accounts   AccountRepository
	tokens     TokenRepository
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// LocalProviderConfig holds the construction parameters for LocalProvider.
type LocalProviderConfig struct {
	Accounts   AccountRepository
	Tokens     TokenRepository
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewLocalProvider creates a Provider backed by local repositories.
func NewLocalProvider(cfg LocalProviderConfig) (*LocalProvider, error) {
	if cfg.Accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}

	p := &LocalProvider{
		accounts:   cfg.Accounts,
		tokens:     cfg.Tokens,
		secret:     cfg.Secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
	if p.accessTTL <= 0 {
		p.accessTTL = 15 * time.Minute
	}
	if p.refreshTTL <= 0 {
		p.refreshTTL = 7 * 24 * time.Hour
	}
	return p, nil
}

// ValidateSession checks the token signature and expiry. No database hit:
// access tokens are self-contained.
func (p *LocalProvider) ValidateSession(_ context.Context, token string) (*Session, error) {
	claims, err := ParseToken(token, p.secret)
	if err != nil {
		return nil, err
	}

	return &Session{
		Token:     token,
		SubjectID: claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ExchangeCredentials verifies a password login and issues a credential.
// Unknown accounts, wrong passwords, and inactive accounts all return
// ErrInvalidCredentials so callers cannot probe which emails exist.
func (p *LocalProvider) ExchangeCredentials(ctx context.Context, email, password string) (*Credential, error) {
	account, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !account.IsActive {
		return nil, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return p.issueCredential(ctx, account, "")
}

// CreateAccount registers a new account and issues its first credential.
func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (*Credential, error) {
	if !IsValidEmail(email) {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidCredentials)
	}
	if !IsValidPassword(password) {
		return nil, fmt.Errorf("%w: password too short", ErrInvalidCredentials)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account := &Account{
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := p.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	return p.issueCredential(ctx, account, "")
}

// Refresh rotates a refresh token and issues a new credential pair.
func (p *LocalProvider) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	stored, err := p.tokens.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, err
	}

	if stored.Revoked {
		// A rotated token came back: assume theft and burn the family.
		if revokeErr := p.tokens.RevokeFamily(ctx, stored.FamilyID); revokeErr != nil {
			return nil, fmt.Errorf("revoking family after reuse: %w", revokeErr)
		}
		return nil, ErrTokenReuse
	}

	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	account, err := p.accounts.GetByID(ctx, stored.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	return p.rotateCredential(ctx, account, stored)
}

// Invalidate revokes the refresh token family backing a session.
func (p *LocalProvider) Invalidate(ctx context.Context, refreshToken string) error {
	stored, err := p.tokens.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		return err
	}
	return p.tokens.RevokeFamily(ctx, stored.FamilyID)
}

// UpdatePassword verifies and replaces an account's password, then
// revokes every outstanding refresh token for the account.
func (p *LocalProvider) UpdatePassword(ctx context.Context, subjectID, current, next string) error {
	account, err := p.accounts.GetByID(ctx, subjectID)
	if err != nil {
		return err
	}

	ok, err := VerifyPassword(current, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if !IsValidPassword(next) {
		return fmt.Errorf("%w: password too short", ErrInvalidCredentials)
	}

	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := p.accounts.UpdatePassword(ctx, subjectID, hash); err != nil {
		return err
	}

	// Existing sessions die with the old password.
	return p.tokens.RevokeAllForAccount(ctx, subjectID)
}

// issueCredential mints an access token and a stored refresh token.
// An empty familyID starts a new token family.
func (p *LocalProvider) issueCredential(ctx context.Context, account *Account, familyID string) (*Credential, error) {
	access, expiresAt, err := GenerateAccessToken(account, p.secret, p.accessTTL)
	if err != nil {
		return nil, err
	}

	raw, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	stored := &RefreshToken{
		AccountID: account.ID,
		FamilyID:  familyID,
		TokenHash: HashToken(raw),
		ExpiresAt: time.Now().Add(p.refreshTTL),
	}
	if err := p.tokens.Create(ctx, stored); err != nil {
		return nil, err
	}

	return &Credential{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    expiresAt,
		SubjectID:    account.ID,
		Email:        account.Email,
	}, nil
}

// rotateCredential mints a new credential pair inside an existing family,
// atomically revoking the consumed refresh token.
func (p *LocalProvider) rotateCredential(ctx context.Context, account *Account, old *RefreshToken) (*Credential, error) {
	access, expiresAt, err := GenerateAccessToken(account, p.secret, p.accessTTL)
	if err != nil {
		return nil, err
	}

	raw, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	next := &RefreshToken{
		AccountID: account.ID,
		FamilyID:  old.FamilyID,
		TokenHash: HashToken(raw),
		ExpiresAt: time.Now().Add(p.refreshTTL),
	}
	if err := p.tokens.Rotate(ctx, old.ID, next); err != nil {
		return nil, err
	}

	return &Credential{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    expiresAt,
		SubjectID:    account.ID,
		Email:        account.Email,
	}, nil
}
