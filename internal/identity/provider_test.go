package identity

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAccountAndValidateSession(t *testing.T) {
	p := testProvider(t)
	ctx := context.Background()

	cred := mustRegister(t, p, "reception@clinic.example", "a-long-password")

	if cred.AccessToken == "" || cred.RefreshToken == "" {
		t.Fatal("credential tokens should not be empty")
	}

	session, err := p.ValidateSession(ctx, cred.AccessToken)
	if err != nil {
		t.Fatalf("ValidateSession() error = %v", err)
	}

	if session.SubjectID != cred.SubjectID {
		t.Errorf("SubjectID = %q, want %q", session.SubjectID, cred.SubjectID)
	}
	if session.Email != "reception@clinic.example" {
		t.Errorf("Email = %q, want %q", session.Email, "reception@clinic.example")
	}
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	p := testProvider(t)
	ctx := context.Background()

	mustRegister(t, p, "dup@clinic.example", "a-long-password")

	_, err := p.CreateAccount(ctx, "dup@clinic.example", "another-password")
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("CreateAccount() error = %v, want ErrEmailExists", err)
	}
}

func TestCreateAccount_InvalidInput(t *testing.T) {
	p := testProvider(t)
	ctx := context.Background()

	if _, err := p.CreateAccount(ctx, "not-an-email", "a-long-password"); err == nil {
		t.Error("CreateAccount() should reject malformed email")
	}
	if _, err := p.CreateAccount(ctx, "ok@clinic.example", "short"); err == nil {
		t.Error("CreateAccount() should reject short password")
	}
}

func TestExchangeCredentials(t *testing.T) {
	p := testProvider(t)
	ctx := context.Background()

	mustRegister(t, p, "login@clinic.example", "a-long-password")

	cred, err := p.ExchangeCredentials(ctx, "login@clinic.example", "a-long-password")
	if err != nil {
		t.Fatalf("ExchangeCredentials() error = %v", err)
	}
	if cred.Email != "login@clinic.example" {
		t.Errorf("Email = %q, want %q", cred.Email, "login@clinic.example")
	}
}

func TestExchangeCredentials_WrongPassword(t *testing.T) {
	p := testProvider(t)
	ctx := context.Background()

	mustRegister(t, p, "login@clinic.example", "a-long-password")

	_, err := p.ExchangeCredentials(ctx, "login@clinic.example", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("ExchangeCredentials() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestExchangeCredentials_UnknownEmail(t *testing.T) {
	p := testProvider(t)

	// Unknown email and wrong password must be indistinguishable.
	_, err := p.ExchangeCredentials(context.Background(), "ghost@clinic.example", "whatever-pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("ExchangeCredentials() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	p := testProvider(t)
	ctx := context.Background()

	cred := mustRegister(t, p, "rotate@clinic.example", "a-long-password")

	next, err := p.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if next.RefreshToken == cred.RefreshToken {
		t.Error("Refresh() should issue a new refresh token")
	}

	// The consumed token is now revoked; reusing it burns the family.
	_, err = p.Refresh(ctx, cred.RefreshToken)
	if !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("Refresh(reused) error = %v, want ErrTokenReuse", err)
	}

	// Family revocation includes the rotated-to token.
	_, err = p.Refresh(ctx, next.RefreshToken)
	if !errors.Is(err, ErrTokenReuse) {
		t.Errorf("Refresh(after family burn) error = %v, want ErrTokenReuse", err)
	}
}

func TestInvalidate(t *testing.T) {
	p := testProvider(t)
	ctx := context.Background()

	cred := mustRegister(t, p, "logout@clinic.example", "a-long-password")

	if err := p.Invalidate(ctx, cred.RefreshToken); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	_, err := p.Refresh(ctx, cred.RefreshToken)
	if err == nil {
		t.Error("Refresh() should fail after Invalidate()")
	}
}

func TestInvalidate_UnknownToken(t *testing.T) {
	p := testProvider(t)

	err := p.Invalidate(context.Background(), "never-issued")
	if !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("Invalidate() error = %v, want ErrSessionInvalid", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	p := testProvider(t)
	ctx := context.Background()

	cred := mustRegister(t, p, "pw@clinic.example", "old-password-1")

	if err := p.UpdatePassword(ctx, cred.SubjectID, "old-password-1", "new-password-1"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	// New password works, old doesn't.
	if _, err := p.ExchangeCredentials(ctx, "pw@clinic.example", "new-password-1"); err != nil {
		t.Errorf("login with new password error = %v", err)
	}
	if _, err := p.ExchangeCredentials(ctx, "pw@clinic.example", "old-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("login with old password error = %v, want ErrInvalidCredentials", err)
	}

	// Outstanding refresh tokens from before the change are revoked.
	if _, err := p.Refresh(ctx, cred.RefreshToken); err == nil {
		t.Error("Refresh() should fail after password change")
	}
}

func TestUpdatePassword_WrongCurrent(t *testing.T) {
	p := testProvider(t)
	ctx := context.Background()

	cred := mustRegister(t, p, "pw2@clinic.example", "old-password-1")

	err := p.UpdatePassword(ctx, cred.SubjectID, "not-the-password", "new-password-1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("UpdatePassword() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	db := testDB(t)
	accounts := NewAccountRepository(db)
	p, err := NewLocalProvider(LocalProviderConfig{
		Accounts: accounts,
		Tokens:   NewTokenRepository(db),
		Secret:   "test-secret-key-for-jwt-signing!",
	})
	if err != nil {
		t.Fatalf("NewLocalProvider() error = %v", err)
	}
	ctx := context.Background()

	cred, err := p.CreateAccount(ctx, "inactive@clinic.example", "a-long-password")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	if err := accounts.SetActive(ctx, cred.SubjectID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	_, err = p.ExchangeCredentials(ctx, "inactive@clinic.example", "a-long-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("ExchangeCredentials() error = %v, want ErrInvalidCredentials", err)
	}

	_, err = p.Refresh(ctx, cred.RefreshToken)
	if !errors.Is(err, ErrAccountInactive) {
		t.Errorf("Refresh() error = %v, want ErrAccountInactive", err)
	}
}
