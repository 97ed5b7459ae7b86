package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keihi-platform/api/internal/identity"
	"github.com/keihi-platform/api/internal/store"
)

type fixture struct {
	store    *store.Memory
	identity *identity.Local
	paths    store.Paths
}

func newFixture() *fixture {
	color.NoColor = true
	return &fixture{
		store:    store.NewMemory(),
		identity: identity.NewLocal([]byte("commands-test-secret-32-bytes-long!"), time.Hour),
		paths:    store.NewPaths("", ""),
	}
}

func (f *fixture) open(ctx context.Context) (*Runtime, error) {
	return &Runtime{
		Store:    f.store,
		Paths:    f.paths,
		Identity: f.identity,
		Logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}, nil
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(f.open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportCommand(t *testing.T) {
	f := newFixture()
	file := writeFile(t, "departments.csv", "部門コード,部門名\nD01,営業部\n,名無し\n")

	out, err := f.run(t, "import", "--tenant", "ACME", "--type", "departments", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported=1 skipped=1")

	docs, err := f.store.List(context.Background(), f.paths.Collection("ACME", store.CollDepartments), store.Query{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "D01", docs[0].ID)
}

func TestImportCommandRequiresTenant(t *testing.T) {
	f := newFixture()
	file := writeFile(t, "departments.csv", "部門コード,部門名\nD01,営業部\n")

	_, err := f.run(t, "import", "--type", "departments", "--file", file)
	assert.ErrorContains(t, err, "--tenant is required")
}

func TestSeedCommand(t *testing.T) {
	f := newFixture()
	file := writeFile(t, "seed.yaml", "categories:\n  - id: travel\n    name: 交通費\n    sortOrder: 1\n")

	out, err := f.run(t, "seed", "--tenant", "ACME", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "1 categories")

	exists, err := f.store.Exists(context.Background(), f.paths.Doc("ACME", store.CollCategories, "travel"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSetupUserCreatesThenUpdates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	out, err := f.run(t, "setup-user", "--tenant", "ACME", "--email", "test@example.com", "--password", "test123456", "--department", "D0101")
	require.NoError(t, err)
	assert.Contains(t, out, "created user test@example.com")

	out, err = f.run(t, "setup-user", "--tenant", "ACME", "--email", "test@example.com", "--password", "test123456", "--role", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "updated existing user")

	users, err := f.identity.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, map[string]any{"role": "admin", "companyId": "ACME"}, users[0].CustomClaims)

	profile, err := f.store.Get(ctx, f.paths.Doc("ACME", store.CollUsers, users[0].UID))
	require.NoError(t, err)
	assert.Equal(t, "admin", profile.Data["role"])
	assert.Equal(t, "D0101", profile.Data["departmentId"], "merge keeps the earlier department")
}

func TestSetupUserRejectsUnknownRole(t *testing.T) {
	f := newFixture()
	_, err := f.run(t, "setup-user", "--tenant", "ACME", "--email", "a@example.com", "--password", "test123456", "--role", "owner")
	assert.ErrorContains(t, err, `unknown role "owner"`)
}
