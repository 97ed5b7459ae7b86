// Package importer loads PCA master exports (CSV or Excel) into a tenant's
// master collections.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/masters"
	"github.com/keihi-platform/api/internal/store"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidKind       = errors.New("invalid master kind")
	ErrUnreadableFile    = errors.New("unreadable file")
	ErrEmptyFile         = errors.New("file has no header row")
	ErrTooManyRows       = errors.New("file has too many rows")
)

// Auditor records one entry per completed import.
type Auditor interface {
	Log(ctx context.Context, entry audit.Entry) error
}

type Request struct {
	TenantID  string
	ActorID   string
	Kind      string
	FileName  string
	Data      []byte
	RequestID string
}

type Result struct {
	Kind          masters.Kind `json:"type"`
	ImportedCount int          `json:"importedCount"`
	SkippedCount  int          `json:"skippedCount"`
	Warnings      []string     `json:"warnings"`
	Message       string       `json:"message"`
}

type Importer struct {
	store   store.Store
	paths   store.Paths
	audit   Auditor
	logger  *slog.Logger
	maxRows int
	now     func() time.Time
}

type Option func(*Importer)

// WithMaxRows caps the number of data rows in one file. Zero disables the cap.
func WithMaxRows(n int) Option {
	return func(im *Importer) { im.maxRows = n }
}

func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

func New(st store.Store, paths store.Paths, auditor Auditor, logger *slog.Logger, opts ...Option) *Importer {
	im := &Importer{
		store:  st,
		paths:  paths,
		audit:  auditor,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import maps every row of the file and submits all records in one batch of
// merge writes. Rows that cannot be imported are counted and reported as
// warnings; only a request-level problem or a failed commit returns an
// error.
func (im *Importer) Import(ctx context.Context, req Request) (Result, error) {
	kind, err := masters.ParseImportKind(req.Kind)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidKind, req.Kind)
	}

	table, enc, err := readTable(req.FileName, req.Data)
	if err != nil {
		return Result{}, err
	}
	if len(table.Header) == 0 {
		return Result{}, ErrEmptyFile
	}
	if im.maxRows > 0 && len(table.Rows) > im.maxRows {
		return Result{}, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(table.Rows), im.maxRows)
	}

	mapper, err := masters.NewMapper(kind, table.Header, im.now().UTC())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidKind, err)
	}

	result := Result{Kind: kind, Warnings: []string{}}
	batch := im.store.Batch()

	if kind == masters.KindSubAccounts {
		if err := im.stageSubAccounts(ctx, req.TenantID, mapper, table, batch, &result); err != nil {
			return Result{}, err
		}
	} else {
		for i, row := range table.Rows {
			out := mapper.Map(row)
			switch out.Result {
			case masters.Imported:
				batch.Merge(im.paths.Doc(req.TenantID, string(kind), out.Key), masters.OmitAbsentFields(out.Record))
				result.ImportedCount++
			case masters.Skipped:
				result.SkippedCount++
				result.Warnings = append(result.Warnings, rowWarning(table.Line(i), out.Reason))
			}
		}
	}

	if err := batch.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit %s import: %w", kind, err)
	}

	targetPath := im.paths.Collection(req.TenantID, string(kind))
	if im.audit != nil {
		err := im.audit.Log(ctx, audit.Entry{
			TenantID:   req.TenantID,
			ActorID:    req.ActorID,
			Action:     "import_" + string(kind),
			TargetPath: targetPath,
			RequestID:  req.RequestID,
			After: map[string]any{
				"count":    result.ImportedCount,
				"skipped":  result.SkippedCount,
				"fileName": req.FileName,
			},
		})
		if err != nil {
			im.logger.Error("import audit failed", "error", err, "tenant_id", req.TenantID, "kind", kind)
		}
	}

	result.Message = summary(result.ImportedCount, result.SkippedCount)
	im.logger.Info("import_completed",
		"tenant_id", req.TenantID,
		"kind", kind,
		"file_name", req.FileName,
		"encoding", enc,
		"imported", result.ImportedCount,
		"skipped", result.SkippedCount,
		"dropped_rows", table.Dropped,
		"request_id", req.RequestID,
	)
	return result, nil
}

type pendingSubAccount struct {
	key    string
	record any
}

// stageSubAccounts groups mapped rows by owning account in first-seen order
// and checks each account once. A missing account skips its whole group.
func (im *Importer) stageSubAccounts(ctx context.Context, tenantID string, mapper *masters.Mapper, table Table, batch store.Batch, result *Result) error {
	var order []string
	groups := map[string][]pendingSubAccount{}

	for i, row := range table.Rows {
		out := mapper.Map(row)
		switch out.Result {
		case masters.Skipped:
			result.SkippedCount++
			result.Warnings = append(result.Warnings, rowWarning(table.Line(i), out.Reason))
		case masters.Imported:
			if _, seen := groups[out.Group]; !seen {
				order = append(order, out.Group)
			}
			groups[out.Group] = append(groups[out.Group], pendingSubAccount{key: out.Key, record: out.Record})
		}
	}

	for _, accountCode := range order {
		pending := groups[accountCode]
		exists, err := im.store.Exists(ctx, im.paths.Doc(tenantID, store.CollAccounts, accountCode))
		if err != nil {
			return fmt.Errorf("check account %s: %w", accountCode, err)
		}
		if !exists {
			result.SkippedCount += len(pending)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("勘定科目 %s が見つかりません。補助科目 %d件をスキップしました。", accountCode, len(pending)))
			continue
		}
		for _, p := range pending {
			batch.Merge(im.paths.Doc(tenantID, store.CollSubAccounts, p.key), masters.OmitAbsentFields(p.record))
			result.ImportedCount++
		}
	}
	return nil
}

func readTable(fileName string, data []byte) (Table, Encoding, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		text, enc := Decode(data)
		return Tokenize(text), enc, nil
	case ".xlsx":
		table, err := ReadSpreadsheet(data)
		if err != nil {
			return Table{}, "", fmt.Errorf("%w: %v", ErrUnreadableFile, err)
		}
		return table, "", nil
	case ".xls":
		table, err := ReadLegacyWorkbook(data)
		if err != nil {
			return Table{}, "", fmt.Errorf("%w: %v", ErrUnreadableFile, err)
		}
		return table, "", nil
	default:
		return Table{}, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
	}
}

// rowWarning prefixes reason with the row's line in the uploaded file.
func rowWarning(line int, reason string) string {
	return fmt.Sprintf("%d行目: %s", line, reason)
}

func summary(imported, skipped int) string {
	msg := fmt.Sprintf("%d件のデータをインポートしました。", imported)
	if skipped > 0 {
		msg += fmt.Sprintf("%d件はスキップされました。", skipped)
	}
	return msg
}
