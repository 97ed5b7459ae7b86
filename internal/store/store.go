// Package store is the document-store boundary used by every tenant-scoped
// component. Paths are slash separated and alternate collection/document
// segments, e.g. "companies/C1700000000000/accounts/101".
package store

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("document not found")

// Snapshot is one stored document.
type Snapshot struct {
	ID   string
	Path string
	Data map[string]any
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

type Query struct {
	Where   []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

type fieldDelete struct{}

// DeleteField, used as a value in Merge, removes that field from the stored
// document.
var DeleteField any = fieldDelete{}

// Batch accumulates writes that are submitted together by Commit.
type Batch interface {
	// Set replaces the whole document.
	Set(path string, data map[string]any)
	// Merge writes only the given fields and leaves the rest of the
	// document untouched.
	Merge(path string, data map[string]any)
	Commit(ctx context.Context) error
}

type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Exists(ctx context.Context, path string) (bool, error)
	Set(ctx context.Context, path string, data map[string]any) error
	Merge(ctx context.Context, path string, data map[string]any) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	Batch() Batch
}

const (
	CollAccounts       = "accounts"
	CollSubAccounts    = "subAccounts"
	CollDepartments    = "departments"
	CollTaxes          = "taxes"
	CollCategories     = "categories"
	CollExportProfiles = "exportProfiles"
	CollExportJobs     = "exportJobs"
	CollUsers          = "users"
	CollAuditLogs      = "auditLogs"
)

// Paths builds tenant-scoped document paths under a root collection.
type Paths struct {
	Root string
}

func NewPaths(root, prefix string) Paths {
	root = strings.Trim(strings.TrimSpace(root), "/")
	if root == "" {
		root = "companies"
	}
	return Paths{Root: prefix + root}
}

func (p Paths) Tenant(tenantID string) string {
	return p.Root + "/" + tenantID
}

func (p Paths) Collection(tenantID, collection string) string {
	return p.Tenant(tenantID) + "/" + collection
}

func (p Paths) Doc(tenantID, collection, key string) string {
	return p.Collection(tenantID, collection) + "/" + key
}

// lastSegment returns the document ID of a path.
func lastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
