package store

import (
	"testing"

	"cloud.google.com/go/firestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSplitsAtFirestoreLimit(t *testing.T) {
	ops := make([]int, 1201)
	for i := range ops {
		ops[i] = i
	}

	chunks := chunk(ops, MaxBatchWrites)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[1], 500)
	assert.Len(t, chunks[2], 201)
	assert.Equal(t, 0, chunks[0][0])
	assert.Equal(t, 500, chunks[1][0])
	assert.Equal(t, 1200, chunks[2][200])
}

func TestChunkEdges(t *testing.T) {
	assert.Empty(t, chunk([]int{}, MaxBatchWrites))
	assert.Len(t, chunk(make([]int, MaxBatchWrites), MaxBatchWrites), 1)
	assert.Len(t, chunk(make([]int, MaxBatchWrites+1), MaxBatchWrites), 2)
}

func TestMergeDataTranslatesDeleteField(t *testing.T) {
	in := map[string]any{
		"role":         "staff",
		"departmentId": DeleteField,
		"settings":     map[string]any{"locale": DeleteField},
	}
	out := mergeData(in)
	assert.Equal(t, "staff", out["role"])
	assert.Equal(t, firestore.Delete, out["departmentId"])
	assert.Equal(t, firestore.Delete, out["settings"].(map[string]any)["locale"])
	assert.Equal(t, DeleteField, in["departmentId"], "input is not modified")
}
