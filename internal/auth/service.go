package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/workshoplabs/backend-garage/internal/common"
)

const defaultAccessTTL = 15 * time.Minute

// Account is the credential subset of a staff record the service needs.
type Account struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
}

// AccountStore looks up staff credentials. Implemented by the staff package's
// pgx store.
type AccountStore interface {
	AccountByEmail(ctx context.Context, email string) (Account, error)
}

// ErrAccountNotFound is returned by AccountStore implementations when no
// staff record matches the email.
var ErrAccountNotFound = errors.New("auth: account not found")

// Service coordinates staff authentication and access token issuance.
type Service struct {
	store     AccountStore
	secret    []byte
	accessTTL time.Duration
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	now       func() time.Time
}

// Config configures the auth service.
type Config struct {
	Store          AccountStore
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// NewService constructs the auth service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: account store is required")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	return &Service{
		store:     cfg.Store,
		secret:    []byte(cfg.Secret),
		accessTTL: ttl,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    cfg.Issuer,
			Audience:  cfg.Audience,
			ClockSkew: cfg.ClockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}, nil
}

// LoginResult bundles token material returned after a successful login.
type LoginResult struct {
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	AccessToken  string    `json:"access_token"`
	AccessExpiry time.Time `json:"access_expires_at"`
}

// HashPassword produces an argon2id hash suitable for storage.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	account, err := s.store.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return LoginResult{}, common.NewAppError("UNAUTHORIZED", "invalid credentials", http.StatusUnauthorized, nil)
		}
		return LoginResult{}, err
	}
	match, err := argon2id.ComparePasswordAndHash(password, account.PasswordHash)
	if err != nil || !match {
		return LoginResult{}, common.NewAppError("UNAUTHORIZED", "invalid credentials", http.StatusUnauthorized, nil)
	}

	token, expiry, err := s.signAccessToken(account.ID, account.Role)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		UserID:       account.ID,
		Name:         account.Name,
		Role:         account.Role,
		AccessToken:  token,
		AccessExpiry: expiry,
	}, nil
}

func (s *Service) signAccessToken(subject, role string) (string, time.Time, error) {
	now := s.now()
	expiry := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		Expiration(expiry).
		Claim("role", role)
	if s.issuer != "" {
		builder = builder.Issuer(s.issuer)
	}
	if s.audience != "" {
		builder = builder.Audience([]string{s.audience})
	}
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiry, nil
}

// ParseAccessToken verifies the token signature and claims and returns the
// staff identifier it was issued to.
func (s *Service) ParseAccessToken(raw string) (string, error) {
	token, err := jwt.Parse([]byte(raw), jwt.WithKey(s.signer, s.secret), jwt.WithValidate(false))
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(token, s.signer, s.now()); err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	subject := token.Subject()
	if subject == "" {
		return "", common.NewAppError("UNAUTHORIZED", "token missing subject", http.StatusUnauthorized, nil)
	}
	return subject, nil
}
