package session

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sidekick/internal/domain"
	"sidekick/internal/events"
	"sidekick/internal/repo"
)

const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNoSession          = errors.New("not logged in")
	ErrSecretMissing      = errors.New("jwt secret not configured")
)

// Session is the explicit login context handed to the surrounding app. It is
// created by Login and destroyed by Logout.
type Session struct {
	InspectorID string    `json:"inspector_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Manager struct {
	Repo   repo.Repo
	Events events.Writer
	Secret string
	TTL    time.Duration
	Cost   int
	Now    func() time.Time
}

func (m Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m Manager) cost() int {
	if m.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return m.Cost
}

// Register creates an inspector account.
func (m Manager) Register(ctx context.Context, email, displayName, password string) (domain.Inspector, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return domain.Inspector{}, fmt.Errorf("invalid email %q", email)
	}
	if len(password) < MinPasswordLength {
		return domain.Inspector{}, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = strings.SplitN(addr.Address, "@", 2)[0]
	}
	if _, err := m.Repo.GetInspectorByEmail(ctx, addr.Address); err == nil {
		return domain.Inspector{}, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Inspector{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost())
	if err != nil {
		return domain.Inspector{}, fmt.Errorf("hash password: %w", err)
	}
	in := domain.Inspector{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(addr.Address),
		DisplayName:  name,
		PasswordHash: string(hash),
		CreatedAt:    m.now().UTC().Format(time.RFC3339),
	}
	tx, err := m.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspector{}, err
	}
	defer tx.Rollback()
	if err := m.Repo.InsertInspector(ctx, tx, in); err != nil {
		return domain.Inspector{}, fmt.Errorf("insert inspector: %w", err)
	}
	if err := m.Events.Append(ctx, tx, events.InspectorRegistered, "", "inspector", in.ID, in.ID, events.Payload{"email": in.Email}); err != nil {
		return domain.Inspector{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Inspector{}, err
	}
	return in, nil
}

// Login checks credentials and issues a session token.
func (m Manager) Login(ctx context.Context, email, password string) (Session, error) {
	in, err := m.Repo.GetInspectorByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(in.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	return m.Issue(in)
}

// Issue signs an HS256 token for the inspector.
func (m Manager) Issue(in domain.Inspector) (Session, error) {
	if strings.TrimSpace(m.Secret) == "" {
		return Session{}, ErrSecretMissing
	}
	now := m.now()
	ttl := m.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	exp := now.Add(ttl).Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.ID,
			Issuer:    "sidekick",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: in.Email,
		Name:  in.DisplayName,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.Secret))
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{
		InspectorID: in.ID,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		Token:       token,
		ExpiresAt:   exp.UTC(),
	}, nil
}

// Verify parses a token issued by Issue.
func (m Manager) Verify(token string) (Claims, error) {
	if strings.TrimSpace(m.Secret) == "" {
		return Claims{}, ErrSecretMissing
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(m.Secret), nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("subject claim required")
	}
	return *claims, nil
}
