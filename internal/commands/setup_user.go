package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/auth"
	"github.com/keihi-platform/api/internal/identity"
	"github.com/keihi-platform/api/internal/session"
	"github.com/keihi-platform/api/internal/store"
)

type setupUserOptions struct {
	email        string
	password     string
	displayName  string
	role         string
	departmentID string
}

func newSetupUserCommand(open Opener, flags *globalFlags) *cobra.Command {
	opts := setupUserOptions{}

	cmd := &cobra.Command{
		Use:   "setup-user",
		Short: "Create or update a user and grant them a role in a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.requireTenant(); err != nil {
				return err
			}
			role, ok := session.ParseRole(opts.role)
			if !ok {
				return fmt.Errorf("unknown role %q", opts.role)
			}

			return withRuntime(cmd.Context(), open, func(rt *Runtime) error {
				user, created, err := ensureUser(cmd.Context(), rt.Identity, opts)
				if err != nil {
					return err
				}
				if err := rt.Identity.SetCustomClaims(cmd.Context(), user.UID, session.Claims(role, flags.tenant, opts.departmentID)); err != nil {
					return fmt.Errorf("set claims: %w", err)
				}
				if err := writeProfile(cmd.Context(), rt, flags, user, role, opts); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if created {
					success(out, "created user %s (%s)", user.Email, user.UID)
				} else {
					success(out, "updated existing user %s (%s)", user.Email, user.UID)
				}
				info(out, "role=%s company=%s department=%s", role, flags.tenant, opts.departmentID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "login email (required)")
	_ = cmd.MarkFlagRequired("email")
	cmd.Flags().StringVar(&opts.password, "password", "", "password for a new user (required)")
	_ = cmd.MarkFlagRequired("password")
	cmd.Flags().StringVar(&opts.displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&opts.role, "role", string(session.RoleFinance), "staff, manager, finance or admin")
	cmd.Flags().StringVar(&opts.departmentID, "department", "", "department ID")

	return cmd
}

// ensureUser returns the user with opts.email, creating it when missing.
func ensureUser(ctx context.Context, idp identity.Provider, opts setupUserOptions) (*identity.User, bool, error) {
	if err := auth.ValidatePassword(opts.password); err != nil {
		return nil, false, err
	}
	user, err := idp.CreateUser(ctx, identity.NewUser{
		Email:         opts.email,
		Password:      opts.password,
		DisplayName:   opts.displayName,
		EmailVerified: true,
	})
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, identity.ErrEmailExists) {
		return nil, false, fmt.Errorf("create user: %w", err)
	}

	users, err := idp.ListUsers(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, strings.TrimSpace(opts.email)) {
			return u, false, nil
		}
	}
	return nil, false, fmt.Errorf("user %s exists but could not be found", opts.email)
}

func writeProfile(ctx context.Context, rt *Runtime, flags *globalFlags, user *identity.User, role session.Role, opts setupUserOptions) error {
	path := rt.Paths.Doc(flags.tenant, store.CollUsers, user.UID)
	profile := map[string]any{
		"email":     user.Email,
		"role":      string(role),
		"companyId": flags.tenant,
		"updatedAt": time.Now().UTC(),
	}
	if name := opts.displayName; name != "" {
		profile["displayName"] = name
	}
	if opts.departmentID != "" {
		profile["departmentId"] = opts.departmentID
	}

	batch := rt.Store.Batch()
	batch.Merge(path, profile)
	audit.NewLogger(rt.Store, rt.Paths).Stage(batch, audit.Entry{
		TenantID:   flags.tenant,
		ActorID:    flags.actor,
		Action:     "user_setup",
		TargetPath: path,
		After:      profile,
	})
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("write user profile: %w", err)
	}
	return nil
}
