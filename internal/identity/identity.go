// Package identity wraps the identity provider that owns user accounts,
// passwords and custom claims.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmailExists        = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid id token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotSupported       = errors.New("operation not supported by provider")
)

// Token is a verified ID token. Claims holds every claim in the token,
// custom claims included.
type Token struct {
	UID    string
	Email  string
	Claims map[string]any
}

type User struct {
	UID           string
	Email         string
	DisplayName   string
	Disabled      bool
	EmailVerified bool
	CustomClaims  map[string]any
	CreatedAt     time.Time
	LastSignInAt  time.Time
}

type NewUser struct {
	Email         string
	Password      string
	DisplayName   string
	EmailVerified bool
}

// UserUpdate changes only the non-nil fields.
type UserUpdate struct {
	DisplayName *string
	Disabled    *bool
	Password    *string
}

type Provider interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Token, error)
	CreateUser(ctx context.Context, user NewUser) (*User, error)
	GetUser(ctx context.Context, uid string) (*User, error)
	UpdateUser(ctx context.Context, uid string, update UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, uid string) error
	SetCustomClaims(ctx context.Context, uid string, claims map[string]any) error
	ListUsers(ctx context.Context) ([]*User, error)
	EmailVerificationLink(ctx context.Context, email string) (string, error)
}

// PasswordSignIn is implemented by providers that can mint tokens from an
// email and password on the server side.
type PasswordSignIn interface {
	SignIn(ctx context.Context, email, password string) (string, error)
}

// ClaimString reads a string claim, returning "" when it is missing or of
// another type.
func ClaimString(claims map[string]any, key string) string {
	v, _ := claims[key].(string)
	return v
}
