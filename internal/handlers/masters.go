package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/httpx"
	"github.com/keihi-platform/api/internal/importer"
	"github.com/keihi-platform/api/internal/masters"
	"github.com/keihi-platform/api/internal/middleware"
	"github.com/keihi-platform/api/internal/store"
)

type appError struct {
	Status  int
	Code    string
	Message string
	Details any
}

type importUpload struct {
	kind     string
	fileName string
	data     []byte
}

type importResponse struct {
	Success bool `json:"success"`
	importer.Result
}

func (s *Server) PostMastersImport(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	upload, appErr := parseImportUpload(r, s.Config.ImportMaxFileBytes)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	result, err := s.Importer.Import(r.Context(), importer.Request{
		TenantID:  principal.CompanyID,
		ActorID:   principal.UID,
		Kind:      upload.kind,
		FileName:  upload.fileName,
		Data:      upload.data,
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		if appErr := importError(err); appErr != nil {
			httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		s.Logger.Error("import failed",
			"error", err,
			"type", upload.kind,
			"file_name", upload.fileName,
			"company_id", principal.CompanyID,
			"request_id", middleware.RequestIDFromContext(r.Context()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "インポート処理中にエラーが発生しました", nil)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, importResponse{Success: true, Result: result})
}

func parseImportUpload(r *http.Request, maxFileBytes int64) (importUpload, *appError) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return importUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_content_type",
			Message: "multipart/form-data で送信してください",
		}
	}

	if err := r.ParseMultipartForm(maxFileBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return importUpload{}, &appError{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    "file_too_large",
				Message: "ファイルサイズが上限を超えています",
				Details: map[string]any{"maxBytes": tooLarge.Limit},
			}
		}
		return importUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_multipart",
			Message: "アップロードデータを読み取れませんでした",
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return importUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "missing_file",
			Message: "ファイルが指定されていません",
		}
	}
	defer file.Close()

	kind := strings.TrimSpace(r.FormValue("type"))
	if _, err := masters.ParseImportKind(kind); err != nil {
		return importUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_type",
			Message: "無効なインポートタイプです",
			Details: map[string]any{"type": kind, "allowed": masters.ImportKinds},
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return importUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_file",
			Message: "アップロードされたファイルを読み取れませんでした",
		}
	}

	return importUpload{kind: kind, fileName: header.Filename, data: data}, nil
}

// importError maps request-level importer errors to 400 responses. It
// returns nil for anything that should surface as a 500.
func importError(err error) *appError {
	switch {
	case errors.Is(err, importer.ErrInvalidKind):
		return &appError{Status: http.StatusBadRequest, Code: "invalid_type", Message: "無効なインポートタイプです"}
	case errors.Is(err, importer.ErrUnsupportedFormat):
		return &appError{Status: http.StatusBadRequest, Code: "unsupported_format", Message: "サポートされていないファイル形式です。CSVまたはExcelファイルを使用してください"}
	case errors.Is(err, importer.ErrUnreadableFile):
		return &appError{Status: http.StatusBadRequest, Code: "unreadable_file", Message: "ファイルを読み取れませんでした"}
	case errors.Is(err, importer.ErrEmptyFile):
		return &appError{Status: http.StatusBadRequest, Code: "empty_file", Message: "ファイルにヘッダー行がありません"}
	case errors.Is(err, importer.ErrTooManyRows):
		return &appError{Status: http.StatusBadRequest, Code: "row_limit_exceeded", Message: "行数が上限を超えています", Details: map[string]any{"detail": err.Error()}}
	}
	return nil
}

func (s *Server) GetMasters(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	activeOnly := query.Get("activeOnly") != "false"

	kinds := masters.ListKinds
	single := query.Get("type") != ""
	if single {
		kind, err := masters.ParseListKind(query.Get("type"))
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_type", "無効なマスタタイプです", map[string]any{"allowed": masters.ListKinds})
			return
		}
		kinds = []masters.Kind{kind}
	}

	result := make(map[masters.Kind][]map[string]any, len(kinds))
	for _, kind := range kinds {
		records, err := s.listMasters(r, principal.CompanyID, kind, activeOnly)
		if err != nil {
			s.internalError(w, r, "list "+string(kind), err)
			return
		}
		result[kind] = records
	}

	if single {
		httpx.WriteJSON(w, http.StatusOK, result[kinds[0]])
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) listMasters(r *http.Request, tenantID string, kind masters.Kind, activeOnly bool) ([]map[string]any, error) {
	var q store.Query
	// Categories are edited directly and always listed in full.
	if activeOnly && kind != masters.KindCategories {
		q.Where = []store.Filter{{Field: "isActive", Value: true}}
	}
	if kind == masters.KindCategories {
		q.OrderBy = "sortOrder"
	}

	docs, err := s.Store.List(r.Context(), s.Paths.Collection(tenantID, string(kind)), q)
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		data := doc.Data
		data[kind.KeyField()] = doc.ID
		if kind == masters.KindSubAccounts {
			if accountCode, subCode, ok := strings.Cut(doc.ID, "-"); ok {
				if _, set := data["accountCode"]; !set {
					data["accountCode"] = accountCode
				}
				if _, set := data["pcaSubCode"]; !set {
					data["pcaSubCode"] = subCode
				}
			}
		}
		records = append(records, data)
	}
	return records, nil
}

func (s *Server) PostMastersCategories(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var category masters.Category
	if err := httpx.DecodeJSON(r, &category); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", httpx.MsgInvalidInput, nil)
		return
	}
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "カテゴリ名は必須です", nil)
		return
	}
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	category.IsActive = true

	for _, code := range []*string{category.DefaultDebitAccountPcaCode, category.DefaultCreditAccountPcaCode} {
		if code == nil || *code == "" {
			continue
		}
		exists, err := s.Store.Exists(r.Context(), s.Paths.Doc(principal.CompanyID, store.CollAccounts, *code))
		if err != nil {
			s.internalError(w, r, "check category account", err)
			return
		}
		if !exists {
			httpx.WriteError(w, r, http.StatusNotFound, "account_not_found", "指定された勘定科目が見つかりません", map[string]string{"pcaCode": *code})
			return
		}
	}

	path := s.Paths.Doc(principal.CompanyID, store.CollCategories, category.ID)
	payload := masters.OmitAbsentFields(category)
	if err := s.Store.Set(r.Context(), path, payload); err != nil {
		s.internalError(w, r, "save category", err)
		return
	}

	s.logAudit(r, audit.Entry{
		TenantID:   principal.CompanyID,
		ActorID:    principal.UID,
		Action:     "category_saved",
		TargetPath: path,
		After:      payload,
	})
	httpx.WriteJSON(w, http.StatusOK, category)
}
