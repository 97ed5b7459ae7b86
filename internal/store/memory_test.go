package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMergeKeepsUntouchedFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	path := "companies/C1/accounts/101"

	require.NoError(t, m.Set(ctx, path, map[string]any{"name": "現金", "debitTaxCode": "00", "settings": map[string]any{"a": 1}}))
	require.NoError(t, m.Merge(ctx, path, map[string]any{"name": "小口現金", "settings": map[string]any{"b": 2}}))

	snap, err := m.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "101", snap.ID)
	assert.Equal(t, "小口現金", snap.Data["name"])
	assert.Equal(t, "00", snap.Data["debitTaxCode"])
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, snap.Data["settings"])
}

func TestMemoryGetMissing(t *testing.T) {
	_, err := NewMemory().Get(context.Background(), "companies/C1/accounts/404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRejectsCollectionPath(t *testing.T) {
	err := NewMemory().Set(context.Background(), "companies/C1/accounts", map[string]any{})
	assert.Error(t, err)
}

func TestMemoryListFiltersOrdersAndLimits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []string{"done", "running", "done", "error"} {
		path := "companies/C1/exportJobs/job" + string(rune('a'+i))
		require.NoError(t, m.Set(ctx, path, map[string]any{
			"status":    status,
			"createdAt": base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, m.Set(ctx, "companies/C2/exportJobs/other", map[string]any{"status": "done"}))
	require.NoError(t, m.Set(ctx, "companies/C1/exportJobs/joba/files/f1", map[string]any{"status": "done"}))

	docs, err := m.List(ctx, "companies/C1/exportJobs", Query{
		Where:   []Filter{{Field: "status", Value: "done"}},
		OrderBy: "createdAt",
		Desc:    true,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "jobc", docs[0].ID)
	assert.Equal(t, "joba", docs[1].ID)

	docs, err = m.List(ctx, "companies/C1/exportJobs", Query{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestMemoryBatchCommitsTogether(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "companies/C1/taxes/B5", map[string]any{"rate": 0.1, "name": "課税売上"}))

	b := m.Batch()
	b.Merge("companies/C1/taxes/B5", map[string]any{"rate": 0.08})
	b.Set("companies/C1/taxes/Q5", map[string]any{"rate": 0.1})

	exists, _ := m.Exists(ctx, "companies/C1/taxes/Q5")
	assert.False(t, exists, "staged writes are not visible before commit")

	require.NoError(t, b.Commit(ctx))
	snap, err := m.Get(ctx, "companies/C1/taxes/B5")
	require.NoError(t, err)
	assert.Equal(t, 0.08, snap.Data["rate"])
	assert.Equal(t, "課税売上", snap.Data["name"])

	exists, _ = m.Exists(ctx, "companies/C1/taxes/Q5")
	assert.True(t, exists)
}

func TestPaths(t *testing.T) {
	p := NewPaths("", "pr_12_")
	assert.Equal(t, "pr_12_companies/C1", p.Tenant("C1"))
	assert.Equal(t, "pr_12_companies/C1/accounts/101", p.Doc("C1", CollAccounts, "101"))
}

func TestMemoryMergeDeletesField(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	path := "companies/C1/users/u1"

	require.NoError(t, m.Set(ctx, path, map[string]any{"role": "staff", "departmentId": "D01"}))
	require.NoError(t, m.Merge(ctx, path, map[string]any{"role": "manager", "departmentId": DeleteField}))

	snap, err := m.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"role": "manager"}, snap.Data)

	b := m.Batch()
	b.Merge("companies/C1/users/u2", map[string]any{"role": "staff", "departmentId": DeleteField})
	require.NoError(t, b.Commit(ctx))
	snap, err = m.Get(ctx, "companies/C1/users/u2")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"role": "staff"}, snap.Data)
}
