package local

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agencykit/proposta"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// resetWindow is how long a mailed reset token stays redeemable
const resetWindow = 24 * time.Hour

// Provider is a database-backed identity provider: bcrypt credentials in the
// auth_accounts table, HS256 session tokens, and a single current session
// with listener fan-out. It satisfies proposta.IdentityProvider.
type Provider struct {
	db       *bun.DB
	tokens   *TokenServiceImpl
	mailer   proposta.Mailer
	logger   proposta.Logger
	resetURL string

	mu        sync.RWMutex
	session   *proposta.Session
	listeners map[int]proposta.SessionListener
	nextSubID int
}

var _ proposta.IdentityProvider = (*Provider)(nil)

// New creates a provider over the given database and token service
func New(db *bun.DB, tokens *TokenServiceImpl) *Provider {
	p := &Provider{
		db:        db,
		tokens:    tokens,
		logger:    proposta.DefaultLogger(),
		resetURL:  "/password-reset",
		listeners: map[int]proposta.SessionListener{},
	}
	p.mailer = NewLogMailer(p.logger)
	return p
}

func (p *Provider) WithLogger(logger proposta.Logger) *Provider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// WithMailer sets the mailer used for password reset notifications
func (p *Provider) WithMailer(mailer proposta.Mailer) *Provider {
	if mailer != nil {
		p.mailer = mailer
	}
	return p
}

// WithResetURL sets the base path embedded in reset notification links
func (p *Provider) WithResetURL(base string) *Provider {
	if base != "" {
		p.resetURL = strings.TrimRight(base, "/")
	}
	return p
}

// GetSession returns the current session, nil when signed out or expired
func (p *Provider) GetSession(_ context.Context) (*proposta.Session, error) {
	p.mu.RLock()
	session := p.session
	p.mu.RUnlock()

	if session == nil {
		return nil, nil
	}

	if session.Expired() {
		p.setSession(nil)
		return nil, nil
	}

	return session, nil
}

// OnSessionChange registers a listener for session replacements. The listener
// fires immediately with the current session, matching hosted providers that
// emit an initial event on subscription.
func (p *Provider) OnSessionChange(fn proposta.SessionListener) proposta.Unsubscribe {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.listeners[id] = fn
	session := p.session
	p.mu.Unlock()

	if fn != nil {
		fn(session)
	}

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// SignInWithPassword verifies credentials and replaces the current session.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (p *Provider) SignInWithPassword(ctx context.Context, identifier, password string) (*proposta.Session, error) {
	account, err := p.getByEmail(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, proposta.ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if proposta.IsInvalidCredentials(err) {
			return nil, proposta.ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password verification failed")
	}

	session, err := p.mintSession(account)
	if err != nil {
		return nil, err
	}

	p.setSession(session)
	return session, nil
}

// SignUp creates a credential and signs the new account in
func (p *Provider) SignUp(ctx context.Context, identifier, password string, metadata map[string]any) (*proposta.Session, error) {
	if identifier == "" {
		return nil, goerrors.New("email is required", goerrors.CategoryBadInput)
	}

	if _, err := p.getByEmail(ctx, identifier); err == nil {
		return nil, proposta.ErrEmailAlreadyRegistered
	} else if !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing account")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	name, _ := metadata["name"].(string)

	account := &Account{
		ID:           uuid.New(),
		Email:        identifier,
		PasswordHash: hash,
		Name:         name,
		Metadata:     metadata,
	}

	if _, err := p.db.NewInsert().Model(account).Exec(ctx); err != nil {
		if proposta.IsDuplicateKey(err) {
			return nil, proposta.ErrEmailAlreadyRegistered
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account")
	}

	session, err := p.mintSession(account)
	if err != nil {
		return nil, err
	}

	p.setSession(session)
	return session, nil
}

// SignOut clears the current session. Always succeeds.
func (p *Provider) SignOut(_ context.Context) error {
	p.setSession(nil)
	return nil
}

// ResetPasswordForEmail records a reset request and mails the token. Unknown
// emails are swallowed so callers cannot probe for registered accounts.
func (p *Provider) ResetPasswordForEmail(ctx context.Context, identifier string) error {
	account, err := p.getByEmail(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			p.logger.Debug("reset requested for unknown email: %s", identifier)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account for reset")
	}

	reset := &PasswordReset{
		ID:        uuid.New(),
		AccountID: account.ID,
		Email:     account.Email,
		Status:    ResetRequestedStatus,
	}

	if _, err := p.db.NewInsert().Model(reset).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset record")
	}

	body := fmt.Sprintf("Reset your password: %s/%s", p.resetURL, reset.ID)
	if err := p.mailer.Send(ctx, account.Email, "Password reset", body); err != nil {
		p.logger.Error("reset notification failed: %v", err)
	}

	return nil
}

// FinalizePasswordReset redeems a token and rewrites the account credential.
// Tokens are single-use and expire 24 hours after creation.
func (p *Provider) FinalizePasswordReset(ctx context.Context, token, newPassword string) error {
	resetID, err := uuid.Parse(token)
	if err != nil {
		return goerrors.New("invalid or expired password reset token", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}

	var accountID uuid.UUID

	err = p.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		reset := &PasswordReset{}
		err := tx.NewSelect().
			Model(reset).
			Where("?TableAlias.id = ?", resetID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("invalid or expired password reset token", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve password reset request")
		}

		if reset.Status != ResetRequestedStatus {
			return goerrors.New("password reset token has already been used", goerrors.CategoryConflict).
				WithTextCode("TOKEN_ALREADY_USED")
		}

		if reset.CreatedAt == nil {
			return goerrors.New("password reset record is missing creation date", goerrors.CategoryInternal)
		}

		if time.Since(*reset.CreatedAt) > resetWindow {
			return goerrors.New("password reset token has expired", goerrors.CategoryValidation).
				WithTextCode("TOKEN_EXPIRED")
		}

		hash, err := HashPassword(newPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		now := time.Now()

		if _, err := tx.NewUpdate().
			Model((*Account)(nil)).
			Set("password_hash = ?", hash).
			Set("updated_at = ?", now).
			Where("?TableAlias.id = ?", reset.AccountID).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account password")
		}

		if _, err := tx.NewUpdate().
			Model((*PasswordReset)(nil)).
			Set("status = ?", ResetCompletedStatus).
			Set("used_at = ?", now).
			Where("?TableAlias.id = ?", reset.ID).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password reset status")
		}

		accountID = reset.AccountID
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	// A live session for the account is revoked, the new credential has to
	// be used on the next sign-in.
	p.mu.RLock()
	current := p.session
	p.mu.RUnlock()
	if current != nil && current.UserID == accountID {
		p.setSession(nil)
	}

	return nil
}

// GetCurrentUser resolves the account behind the current session
func (p *Provider) GetCurrentUser(ctx context.Context) (*proposta.AuthAccount, error) {
	session, err := p.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, proposta.ErrNoActiveSession
	}

	account := &Account{}
	err = p.db.NewSelect().
		Model(account).
		Where("?TableAlias.id = ?", session.UserID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, proposta.ErrNoActiveSession
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
	}

	return &proposta.AuthAccount{
		ID:       account.ID,
		Email:    account.Email,
		Metadata: account.Metadata,
	}, nil
}

// ValidateToken checks a bearer token and returns the session it represents.
// Used by the HTTP layer to authenticate API requests without touching the
// in-memory current session.
func (p *Provider) ValidateToken(tokenString string) (*proposta.Session, error) {
	claims, err := p.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, goerrors.New("session token subject is not a valid id", goerrors.CategoryAuth)
	}

	session := &proposta.Session{
		Token:    tokenString,
		UserID:   userID,
		Email:    claims.Email,
		Metadata: claims.Metadata,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	return session, nil
}

func (p *Provider) getByEmail(ctx context.Context, email string) (*Account, error) {
	account := &Account{}
	err := p.db.NewSelect().
		Model(account).
		Where("LOWER(?TableAlias.email) = LOWER(?)", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}
	return account, nil
}

func (p *Provider) mintSession(account *Account) (*proposta.Session, error) {
	token, expiresAt, err := p.tokens.Generate(account)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint session token")
	}

	return &proposta.Session{
		Token:     token,
		UserID:    account.ID,
		Email:     account.Email,
		Metadata:  account.Metadata,
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	}, nil
}

func (p *Provider) setSession(session *proposta.Session) {
	p.mu.Lock()
	p.session = session
	listeners := make([]proposta.SessionListener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(session)
		}
	}
}
