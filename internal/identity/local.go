package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/keihi-platform/api/internal/auth"
)

const localIssuer = "keihi-local"

// reservedClaims cannot be overridden by custom claims.
var reservedClaims = map[string]bool{
	"iss": true, "sub": true, "aud": true, "exp": true, "iat": true, "nbf": true, "email": true,
}

// Local is an in-process Provider for development and tests. Users live in
// memory, passwords are argon2id hashes and ID tokens are HS256 JWTs that
// embed the custom claims current at sign-in, like Firebase ID tokens.
type Local struct {
	mu      sync.RWMutex
	users   map[string]*localUser
	byEmail map[string]string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

type localUser struct {
	User
	passwordHash string
}

func NewLocal(secret []byte, ttl time.Duration) *Local {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Local{
		users:   map[string]*localUser{},
		byEmail: map[string]string{},
		secret:  secret,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *Local) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	parsed, err := jwt.Parse(idToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuer),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	uid, _ := claims.GetSubject()
	if uid == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	l.mu.RLock()
	u, exists := l.users[uid]
	disabled := exists && u.Disabled
	l.mu.RUnlock()
	if !exists || disabled {
		return nil, fmt.Errorf("%w: user %s unavailable", ErrInvalidToken, uid)
	}

	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return &Token{UID: uid, Email: ClaimString(out, "email"), Claims: out}, nil
}

// SignIn checks the password and returns a signed ID token.
func (l *Local) SignIn(ctx context.Context, email, password string) (string, error) {
	l.mu.RLock()
	uid, ok := l.byEmail[normalizeEmail(email)]
	var u localUser
	if ok {
		u = *l.users[uid]
	}
	l.mu.RUnlock()

	if !ok || u.Disabled {
		return "", ErrInvalidCredentials
	}
	match, err := auth.VerifyPassword(password, u.passwordHash)
	if err != nil {
		return "", fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return "", ErrInvalidCredentials
	}

	token, err := l.mint(u.User)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	if stored, ok := l.users[uid]; ok {
		stored.LastSignInAt = l.now().UTC()
	}
	l.mu.Unlock()
	return token, nil
}

// IssueToken mints a token for an existing user without a password check.
func (l *Local) IssueToken(uid string) (string, error) {
	l.mu.RLock()
	u, ok := l.users[uid]
	var snapshot User
	if ok {
		snapshot = u.User
	}
	l.mu.RUnlock()
	if !ok {
		return "", ErrUserNotFound
	}
	return l.mint(snapshot)
}

func (l *Local) mint(u User) (string, error) {
	now := l.now()
	claims := jwt.MapClaims{}
	for k, v := range u.CustomClaims {
		if reservedClaims[k] {
			continue
		}
		claims[k] = v
	}
	claims["iss"] = localIssuer
	claims["sub"] = u.UID
	claims["email"] = u.Email
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(l.ttl).Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (l *Local) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	email := normalizeEmail(nu.Email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	if len(nu.Password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}
	hash, err := auth.HashPassword(nu.Password)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byEmail[email]; exists {
		return nil, ErrEmailExists
	}
	u := &localUser{
		User: User{
			UID:           strings.ReplaceAll(uuid.NewString(), "-", ""),
			Email:         email,
			DisplayName:   nu.DisplayName,
			EmailVerified: nu.EmailVerified,
			CreatedAt:     l.now().UTC(),
		},
		passwordHash: hash,
	}
	l.users[u.UID] = u
	l.byEmail[email] = u.UID
	return copyUser(u.User), nil
}

func (l *Local) GetUser(ctx context.Context, uid string) (*User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.users[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u.User), nil
}

func (l *Local) UpdateUser(ctx context.Context, uid string, update UserUpdate) (*User, error) {
	var hash string
	if update.Password != nil {
		if len(*update.Password) < 6 {
			return nil, errors.New("password must be at least 6 characters")
		}
		h, err := auth.HashPassword(*update.Password)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	if update.DisplayName != nil {
		u.DisplayName = *update.DisplayName
	}
	if update.Disabled != nil {
		u.Disabled = *update.Disabled
	}
	if hash != "" {
		u.passwordHash = hash
	}
	return copyUser(u.User), nil
}

func (l *Local) DeleteUser(ctx context.Context, uid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	delete(l.byEmail, u.Email)
	delete(l.users, uid)
	return nil
}

// SetCustomClaims replaces the custom claims. Tokens issued earlier keep
// the claims they were minted with.
func (l *Local) SetCustomClaims(ctx context.Context, uid string, claims map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	u.CustomClaims = copyClaims(claims)
	return nil
}

func (l *Local) ListUsers(ctx context.Context) ([]*User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*User, 0, len(l.users))
	for _, u := range l.users {
		out = append(out, copyUser(u.User))
	}
	return out, nil
}

func (l *Local) EmailVerificationLink(ctx context.Context, email string) (string, error) {
	l.mu.RLock()
	_, ok := l.byEmail[normalizeEmail(email)]
	l.mu.RUnlock()
	if !ok {
		return "", ErrUserNotFound
	}
	code, err := auth.NewActionCode()
	if err != nil {
		return "", err
	}
	q := url.Values{"mode": {"verifyEmail"}, "oobCode": {code}, "email": {email}}
	return "http://localhost/__/auth/action?" + q.Encode(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyUser(u User) *User {
	u.CustomClaims = copyClaims(u.CustomClaims)
	return &u
}

func copyClaims(claims map[string]any) map[string]any {
	if claims == nil {
		return nil
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out
}
