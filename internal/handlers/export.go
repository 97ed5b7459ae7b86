package handlers

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/httpx"
	"github.com/keihi-platform/api/internal/masters"
	"github.com/keihi-platform/api/internal/store"
)

const (
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"

	defaultJobLimit = 10
	maxJobLimit     = 100
)

// exportableStatuses are the expense states an export job may select.
var exportableStatuses = []string{"approved", "exported"}

type exportJobRequest struct {
	PeriodFrom  string   `json:"periodFrom"`
	PeriodTo    string   `json:"periodTo"`
	Departments []string `json:"departments"`
	Status      []string `json:"status"`
	ProfileID   string   `json:"profileId"`
}

type exportJobResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) PostExportJobs(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req exportJobRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", httpx.MsgInvalidInput, nil)
		return
	}
	if req.PeriodFrom == "" || req.PeriodTo == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "対象期間を指定してください", nil)
		return
	}
	if req.ProfileID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "エクスポートプロファイルを指定してください", nil)
		return
	}

	from, errFrom := parsePeriod(req.PeriodFrom)
	to, errTo := parsePeriod(req.PeriodTo)
	if errFrom != nil || errTo != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_date", "日付の形式が正しくありません", nil)
		return
	}
	if from.After(to) {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_period", "開始日は終了日以前の日付を指定してください", nil)
		return
	}

	statuses := []string{"approved"}
	if req.Status != nil {
		statuses = []string{}
		for _, st := range req.Status {
			if slices.Contains(exportableStatuses, st) {
				statuses = append(statuses, st)
			}
		}
	}
	departments := req.Departments
	if departments == nil {
		departments = []string{}
	}

	exists, err := s.Store.Exists(r.Context(), s.Paths.Doc(principal.CompanyID, store.CollExportProfiles, req.ProfileID))
	if err != nil {
		s.internalError(w, r, "check export profile", err)
		return
	}
	if !exists {
		httpx.WriteError(w, r, http.StatusNotFound, "profile_not_found", "エクスポートプロファイルが見つかりません", nil)
		return
	}

	jobID := uuid.NewString()
	job := map[string]any{
		"filters": map[string]any{
			"periodFrom":  req.PeriodFrom,
			"periodTo":    req.PeriodTo,
			"departments": departments,
			"status":      statuses,
			"profileId":   req.ProfileID,
		},
		"status":    JobRunning,
		"createdBy": principal.UID,
		"createdAt": s.now().UTC(),
		"summary": map[string]any{
			"totalCount":    0,
			"totalAmount":   0,
			"exportedCount": 0,
		},
	}

	path := s.Paths.Doc(principal.CompanyID, store.CollExportJobs, jobID)
	if err := s.Store.Set(r.Context(), path, job); err != nil {
		s.internalError(w, r, "create export job", err)
		return
	}

	s.logAudit(r, audit.Entry{
		TenantID:   principal.CompanyID,
		ActorID:    principal.UID,
		Action:     "export_job_created",
		TargetPath: path,
		After:      job,
	})

	// CSV generation is picked up asynchronously by the export worker.
	httpx.WriteJSON(w, http.StatusOK, exportJobResponse{
		JobID:   jobID,
		Status:  JobRunning,
		Message: "エクスポートジョブを作成しました。CSVは非同期で生成されます。",
	})
}

func parsePeriod(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006/01/02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognised date")
}

func (s *Server) GetExportJobs(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	limit := defaultJobLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "limit は正の整数で指定してください", nil)
			return
		}
		limit = min(n, maxJobLimit)
	}

	q := store.Query{OrderBy: "createdAt", Desc: true, Limit: limit}
	if status := r.URL.Query().Get("status"); status != "" {
		q.Where = []store.Filter{{Field: "status", Value: status}}
	}

	docs, err := s.Store.List(r.Context(), s.Paths.Collection(principal.CompanyID, store.CollExportJobs), q)
	if err != nil {
		s.internalError(w, r, "list export jobs", err)
		return
	}

	jobs := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		doc.Data["id"] = doc.ID
		jobs = append(jobs, doc.Data)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) GetExportProfiles(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	docs, err := s.Store.List(r.Context(), s.Paths.Collection(principal.CompanyID, store.CollExportProfiles), store.Query{OrderBy: "name"})
	if err != nil {
		s.internalError(w, r, "list export profiles", err)
		return
	}
	profiles := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		doc.Data["id"] = doc.ID
		profiles = append(profiles, doc.Data)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func (s *Server) PostExportProfiles(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var profile masters.ExportProfile
	if err := httpx.DecodeJSON(r, &profile); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", httpx.MsgInvalidInput, nil)
		return
	}
	if err := profile.Validate(); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", httpx.MsgInvalidInput, map[string]string{"reason": err.Error()})
		return
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.MappingJSON == nil {
		profile.MappingJSON = map[string]any{}
	}
	if profile.DateFormat == "" {
		profile.DateFormat = "yyyyMMdd"
	}

	path := s.Paths.Doc(principal.CompanyID, store.CollExportProfiles, profile.ID)
	payload := masters.OmitAbsentFields(profile)
	if err := s.Store.Set(r.Context(), path, payload); err != nil {
		s.internalError(w, r, "save export profile", err)
		return
	}

	s.logAudit(r, audit.Entry{
		TenantID:   principal.CompanyID,
		ActorID:    principal.UID,
		Action:     "export_profile_saved",
		TargetPath: path,
		After:      payload,
	})
	httpx.WriteJSON(w, http.StatusCreated, profile)
}
