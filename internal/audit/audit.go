package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keihi-platform/api/internal/store"
)

// Logger appends entries to a tenant's auditLogs collection. Entries are
// never updated once written.
type Logger struct {
	store store.Store
	paths store.Paths
	now   func() time.Time
}

func NewLogger(st store.Store, paths store.Paths) *Logger {
	return &Logger{store: st, paths: paths, now: time.Now}
}

type Entry struct {
	TenantID   string
	ActorID    string
	Action     string
	TargetPath string
	Before     map[string]any
	After      map[string]any
	RequestID  string
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	path, doc := l.document(entry)
	if err := l.store.Set(ctx, path, doc); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Stage adds the entry to b so it commits together with the writes it
// describes.
func (l *Logger) Stage(b store.Batch, entry Entry) {
	path, doc := l.document(entry)
	b.Set(path, doc)
}

func (l *Logger) document(entry Entry) (string, map[string]any) {
	doc := map[string]any{
		"actorId":    entry.ActorID,
		"action":     entry.Action,
		"targetPath": entry.TargetPath,
		"after":      entry.After,
		"at":         l.now().UTC(),
	}
	if entry.After == nil {
		doc["after"] = map[string]any{}
	}
	if entry.Before != nil {
		doc["before"] = entry.Before
	}
	if entry.RequestID != "" {
		doc["requestId"] = entry.RequestID
	}
	return l.paths.Doc(entry.TenantID, store.CollAuditLogs, uuid.NewString()), doc
}
