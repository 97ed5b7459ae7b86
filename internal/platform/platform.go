// Package platform builds the store and identity backends selected by
// configuration.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/keihi-platform/api/internal/config"
	"github.com/keihi-platform/api/internal/identity"
	"github.com/keihi-platform/api/internal/store"
)

// Backends holds the process-wide clients. Close releases them.
type Backends struct {
	Store    store.Store
	Identity identity.Provider
	Paths    store.Paths

	firestore *firestore.Client
}

func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{Paths: store.NewPaths(cfg.TenantRoot, cfg.CollectionPrefix)}

	var app *firebase.App
	if cfg.NeedsFirebase() {
		opts, err := credentialOptions(cfg.Firebase)
		if err != nil {
			return nil, err
		}
		app, err = firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
		if err != nil {
			return nil, fmt.Errorf("initialize firebase app: %w", err)
		}
	}

	switch cfg.StoreBackend {
	case config.StoreFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("create firestore client: %w", err)
		}
		b.firestore = client
		b.Store = store.NewFirestore(client)
	case config.StoreMemory:
		logger.Warn("memory_store_enabled", "env", cfg.Env)
		b.Store = store.NewMemory()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	switch cfg.IdentityProvider {
	case config.IdentityFirebase:
		client, err := app.Auth(ctx)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("create auth client: %w", err)
		}
		b.Identity = identity.NewFirebase(client)
	case config.IdentityLocal:
		logger.Warn("local_identity_enabled", "env", cfg.Env)
		b.Identity = identity.NewLocal([]byte(cfg.LocalAuthSecret), cfg.SessionTTL)
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown identity provider %q", cfg.IdentityProvider)
	}

	return b, nil
}

func (b *Backends) Close() error {
	if b.firestore == nil {
		return nil
	}
	return b.firestore.Close()
}

// credentialOptions prefers discrete service-account variables, then an
// explicit credentials file, then application default credentials.
func credentialOptions(fb config.Firebase) ([]option.ClientOption, error) {
	if fb.HasServiceAccount() {
		raw, err := serviceAccountJSON(fb)
		if err != nil {
			return nil, err
		}
		return []option.ClientOption{option.WithCredentialsJSON(raw)}, nil
	}
	if fb.CredentialsFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(fb.CredentialsFile)}, nil
	}
	return nil, nil
}

func serviceAccountJSON(fb config.Firebase) ([]byte, error) {
	if fb.ProjectID == "" {
		return nil, errors.New("service account credentials need a project id")
	}
	return json.Marshal(map[string]string{
		"type":         "service_account",
		"project_id":   fb.ProjectID,
		"client_email": fb.ClientEmail,
		"private_key":  fb.PrivateKey,
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
}
