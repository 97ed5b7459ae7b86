package identity

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
)

// Firebase is a Provider backed by Firebase Authentication.
type Firebase struct {
	client *auth.Client
}

func NewFirebase(client *auth.Client) *Firebase {
	return &Firebase{client: client}
}

func (f *Firebase) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	decoded, err := f.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &Token{
		UID:    decoded.UID,
		Email:  ClaimString(decoded.Claims, "email"),
		Claims: decoded.Claims,
	}, nil
}

func (f *Firebase) CreateUser(ctx context.Context, user NewUser) (*User, error) {
	params := (&auth.UserToCreate{}).
		Email(user.Email).
		Password(user.Password).
		EmailVerified(user.EmailVerified)
	if user.DisplayName != "" {
		params = params.DisplayName(user.DisplayName)
	}

	rec, err := f.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return fromRecord(rec), nil
}

func (f *Firebase) GetUser(ctx context.Context, uid string) (*User, error) {
	rec, err := f.client.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}
	return fromRecord(rec), nil
}

func (f *Firebase) UpdateUser(ctx context.Context, uid string, update UserUpdate) (*User, error) {
	params := &auth.UserToUpdate{}
	if update.DisplayName != nil {
		params = params.DisplayName(*update.DisplayName)
	}
	if update.Disabled != nil {
		params = params.Disabled(*update.Disabled)
	}
	if update.Password != nil {
		params = params.Password(*update.Password)
	}

	rec, err := f.client.UpdateUser(ctx, uid, params)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user %s: %w", uid, err)
	}
	return fromRecord(rec), nil
}

func (f *Firebase) DeleteUser(ctx context.Context, uid string) error {
	if err := f.client.DeleteUser(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user %s: %w", uid, err)
	}
	return nil
}

func (f *Firebase) SetCustomClaims(ctx context.Context, uid string, claims map[string]any) error {
	if err := f.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
		if auth.IsUserNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("set custom claims for %s: %w", uid, err)
	}
	return nil
}

func (f *Firebase) ListUsers(ctx context.Context) ([]*User, error) {
	iter := f.client.Users(ctx, "")
	var users []*User
	for {
		rec, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate users: %w", err)
		}
		users = append(users, fromRecord(rec.UserRecord))
	}
	return users, nil
}

func (f *Firebase) EmailVerificationLink(ctx context.Context, email string) (string, error) {
	link, err := f.client.EmailVerificationLink(ctx, email)
	if err != nil {
		return "", fmt.Errorf("email verification link: %w", err)
	}
	return link, nil
}

func fromRecord(rec *auth.UserRecord) *User {
	u := &User{
		UID:           rec.UID,
		Email:         rec.Email,
		DisplayName:   rec.DisplayName,
		Disabled:      rec.Disabled,
		EmailVerified: rec.EmailVerified,
		CustomClaims:  rec.CustomClaims,
	}
	if rec.UserMetadata != nil {
		u.CreatedAt = time.UnixMilli(rec.UserMetadata.CreationTimestamp).UTC()
		if rec.UserMetadata.LastLogInTimestamp > 0 {
			u.LastSignInAt = time.UnixMilli(rec.UserMetadata.LastLogInTimestamp).UTC()
		}
	}
	return u
}
