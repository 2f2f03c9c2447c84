package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/pia-workflow/internal/models"
)

type AuthStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	InsertUser(ctx context.Context, u *models.User) (*models.User, error)
}

type TokenSigner func(u *models.User, ttl time.Duration) (string, error)

// TokenVerifier checks a bearer token and returns the user id it was issued for.
type TokenVerifier func(token string) (int64, error)

type AuthService struct {
	store     AuthStore
	now       func() time.Time
	signToken TokenSigner
	verify    TokenVerifier
	tokenTTL  time.Duration
	cost      int
}

type AuthResult struct {
	Token string
	User  *models.User
}

// bcrypt silently ignores input past this length.
const maxPasswordBytes = 72

func NewAuthService(store AuthStore, signer TokenSigner, verifier TokenVerifier, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		signToken: signer,
		verify:    verifier,
		tokenTTL:  ttl,
		cost:      bcrypt.DefaultCost,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password, role string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	if len(password) > maxPasswordBytes {
		return nil, NewInvalidError("password must be at most 72 bytes")
	}
	r, ok := models.ParseRole(role)
	if !ok {
		return nil, NewInvalidError("invalid role")
	}
	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("email taken")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	return s.store.InsertUser(ctx, &models.User{Email: email, PassHash: hash, Role: r, CreatedAt: s.now()})
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(u, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: u}, nil
}

// Authenticate resolves a bearer token to the caller. The role is read from
// the stored user, not trusted from the token.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, NewUnauthorizedError("missing token")
	}
	if s.verify == nil {
		return Identity{}, NewUnauthorizedError("token verifier not configured")
	}
	uid, err := s.verify(token)
	if err != nil {
		return Identity{}, NewUnauthorizedError("token invalid")
	}
	u, err := s.store.GetUser(ctx, uid)
	if err != nil {
		return Identity{}, err
	}
	if u == nil {
		return Identity{}, NewUnauthorizedError("user not found")
	}
	return Identity{UserID: u.ID, Email: u.Email, Role: u.Role}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
