package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keihi-platform/api/internal/config"
	"github.com/keihi-platform/api/internal/identity"
	"github.com/keihi-platform/api/internal/store"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "Password123!"
)

type testEnv struct {
	router   http.Handler
	store    *store.Memory
	identity *identity.Local
}

// failingCommitStore accepts every batch write and fails the commit.
type failingCommitStore struct {
	store.Store
}

func (s failingCommitStore) Batch() store.Batch {
	return failingBatch{s.Store.Batch()}
}

type failingBatch struct {
	store.Batch
}

func (failingBatch) Commit(context.Context) error {
	return errors.New("commit unavailable")
}

func TestRegistrationLoginAndMe(t *testing.T) {
	env := setupTestEnv(t)
	companyID := registerCompany(t, env.router)

	cookie := login(t, env.router, adminEmail, adminPassword)
	status, body := request(t, env.router, http.MethodGet, "/api/auth/me", nil, cookie)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from /auth/me, got %d: %s", status, body)
	}
	var me struct {
		Role      string `json:"role"`
		CompanyID string `json:"companyId"`
	}
	decode(t, body, &me)
	if me.Role != "admin" || me.CompanyID != companyID {
		t.Fatalf("unexpected principal: %+v", me)
	}

	exists, err := env.store.Exists(context.Background(), "companies/"+companyID)
	if err != nil || !exists {
		t.Fatalf("expected tenant document for %s, exists=%v err=%v", companyID, exists, err)
	}
}

func TestDuplicateCompanyEmailConflicts(t *testing.T) {
	env := setupTestEnv(t)
	registerCompany(t, env.router)

	status, body := request(t, env.router, http.MethodPost, "/api/registration/company", companyPayload(), nil)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate admin email, got %d: %s", status, body)
	}
}

func TestImportThenListMasters(t *testing.T) {
	env := setupTestEnv(t)
	registerCompany(t, env.router)
	cookie := login(t, env.router, adminEmail, adminPassword)

	csv := "勘定科目コード,勘定科目名,借方税区分コード\n101,現金,00\n521,旅費交通費,Q5\n"
	status, body := upload(t, env.router, cookie, "accounts", "accounts.csv", []byte(csv))
	if status != http.StatusOK {
		t.Fatalf("expected 200 from import, got %d: %s", status, body)
	}
	var result struct {
		Success       bool `json:"success"`
		ImportedCount int  `json:"importedCount"`
	}
	decode(t, body, &result)
	if !result.Success || result.ImportedCount != 2 {
		t.Fatalf("unexpected import result: %s", body)
	}

	status, body = request(t, env.router, http.MethodGet, "/api/masters?type=accounts", nil, cookie)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from masters, got %d: %s", status, body)
	}
	var accounts []map[string]any
	decode(t, body, &accounts)
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d: %s", len(accounts), body)
	}
	if accounts[0]["pcaCode"] != "101" || accounts[0]["debitTaxCode"] != "00" {
		t.Fatalf("unexpected first account: %v", accounts[0])
	}
}

func TestImportRejectsUnknownType(t *testing.T) {
	env := setupTestEnv(t)
	registerCompany(t, env.router)
	cookie := login(t, env.router, adminEmail, adminPassword)

	status, body := upload(t, env.router, cookie, "projects", "projects.csv", []byte("a,b\n1,2\n"))
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d: %s", status, body)
	}
}

func TestStaffCannotImport(t *testing.T) {
	env := setupTestEnv(t)
	registerCompany(t, env.router)
	adminCookie := login(t, env.router, adminEmail, adminPassword)

	payload, _ := json.Marshal(map[string]string{
		"email":       "staff@example.com",
		"displayName": "経費 太郎",
		"role":        "staff",
		"password":    "StaffPass123",
	})
	status, body := request(t, env.router, http.MethodPost, "/api/registration/user", payload, adminCookie)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from user registration, got %d: %s", status, body)
	}

	staffCookie := login(t, env.router, "staff@example.com", "StaffPass123")
	status, body = upload(t, env.router, staffCookie, "accounts", "accounts.csv", []byte("勘定科目コード,勘定科目名\n101,現金\n"))
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for staff import, got %d: %s", status, body)
	}

	status, _ = request(t, env.router, http.MethodGet, "/api/masters", nil, staffCookie)
	if status != http.StatusOK {
		t.Fatalf("expected staff to read masters, got %d", status)
	}
}

func TestAdminCannotDemoteSelf(t *testing.T) {
	env := setupTestEnv(t)
	registerCompany(t, env.router)
	cookie := login(t, env.router, adminEmail, adminPassword)

	status, body := request(t, env.router, http.MethodGet, "/api/auth/me", nil, cookie)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from /auth/me, got %d", status)
	}
	var me struct {
		UID string `json:"uid"`
	}
	decode(t, body, &me)

	payload, _ := json.Marshal(map[string]string{"uid": me.UID, "role": "staff"})
	status, body = request(t, env.router, http.MethodPut, "/api/users", payload, cookie)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for self demotion, got %d: %s", status, body)
	}
}

func TestTokenWithoutClaimsIsUnauthorized(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	u, err := env.identity.CreateUser(ctx, identity.NewUser{Email: "orphan@example.com", Password: "Password123!"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := env.identity.IssueToken(u.UID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	status, _ := request(t, env.router, http.MethodGet, "/api/masters", nil, nil, map[string]string{"Authorization": "Bearer " + token})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for token without claims, got %d", status)
	}

	status, _ = request(t, env.router, http.MethodPost, "/api/auth/login", mustJSON(map[string]string{"email": "orphan@example.com", "password": "Password123!"}), nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 login for unprovisioned account, got %d", status)
	}
}

func TestExportJobLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	registerCompany(t, env.router)
	cookie := login(t, env.router, adminEmail, adminPassword)

	status, body := request(t, env.router, http.MethodPost, "/api/export/profiles",
		mustJSON(map[string]string{"name": "PCA標準", "encoding": "Shift_JIS", "delimiter": ","}), cookie)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from profile save, got %d: %s", status, body)
	}
	var profile struct {
		ID string `json:"id"`
	}
	decode(t, body, &profile)

	status, body = request(t, env.router, http.MethodPost, "/api/export/jobs", mustJSON(map[string]any{
		"periodFrom": "2026-04-01",
		"periodTo":   "2026-04-30",
		"profileId":  profile.ID,
	}), cookie)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from export job, got %d: %s", status, body)
	}
	var job struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	decode(t, body, &job)
	if job.JobID == "" || job.Status != "running" {
		t.Fatalf("unexpected job response: %s", body)
	}

	status, body = request(t, env.router, http.MethodPost, "/api/export/jobs", mustJSON(map[string]any{
		"periodFrom": "2026-05-01",
		"periodTo":   "2026-04-01",
		"profileId":  profile.ID,
	}), cookie)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted period, got %d: %s", status, body)
	}

	status, body = request(t, env.router, http.MethodGet, "/api/export/jobs?limit=5", nil, cookie)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from job list, got %d: %s", status, body)
	}
	var jobs struct {
		Jobs []map[string]any `json:"jobs"`
	}
	decode(t, body, &jobs)
	if len(jobs.Jobs) != 1 || jobs.Jobs[0]["id"] != job.JobID {
		t.Fatalf("unexpected job list: %s", body)
	}
}

func TestForeignOriginRejected(t *testing.T) {
	env := setupTestEnv(t)
	registerCompany(t, env.router)
	cookie := login(t, env.router, adminEmail, adminPassword)

	status, _ := request(t, env.router, http.MethodPost, "/api/masters/categories",
		mustJSON(map[string]string{"name": "交通費"}), cookie, map[string]string{"Origin": "https://evil.example"})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %d", status)
	}
}

func TestValidationErrorEnvelope(t *testing.T) {
	env := setupTestEnv(t)

	status, body := request(t, env.router, http.MethodPost, "/api/registration/company", []byte(`{"name":"x"}`), nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for schema violation, got %d: %s", status, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		RequestID string `json:"requestId"`
	}
	decode(t, body, &envelope)
	if envelope.Error.Code != "validation_error" || envelope.RequestID == "" {
		t.Fatalf("unexpected envelope: %s", body)
	}
}

func TestCompanyRegistrationRollsBackIdentity(t *testing.T) {
	env := setupTestEnvWithStore(t, func(m *store.Memory) store.Store { return failingCommitStore{Store: m} })

	status, body := request(t, env.router, http.MethodPost, "/api/registration/company", companyPayload(), nil)
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500 when the tenant batch fails, got %d: %s", status, body)
	}

	users, err := env.identity.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected the admin identity to be deleted, found %d users", len(users))
	}
}

func TestUserRegistrationTemporaryPassword(t *testing.T) {
	env := setupTestEnv(t)
	registerCompany(t, env.router)
	cookie := login(t, env.router, adminEmail, adminPassword)

	status, body := request(t, env.router, http.MethodPost, "/api/registration/user", mustJSON(map[string]string{
		"email":       "generated@example.com",
		"displayName": "仮 パス",
		"role":        "manager",
	}), cookie)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var generated map[string]any
	decode(t, body, &generated)
	temporary, _ := generated["temporaryPassword"].(string)
	if temporary == "" {
		t.Fatalf("expected a generated temporaryPassword: %s", body)
	}
	login(t, env.router, "generated@example.com", temporary)

	status, body = request(t, env.router, http.MethodPost, "/api/registration/user", mustJSON(map[string]string{
		"email":       "chosen@example.com",
		"displayName": "自分 パス",
		"role":        "staff",
		"password":    "ChosenPass123",
	}), cookie)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var supplied map[string]any
	decode(t, body, &supplied)
	if _, ok := supplied["temporaryPassword"]; ok {
		t.Fatalf("temporaryPassword must be absent when a password was supplied: %s", body)
	}
}

func TestExportJobUnknownProfile(t *testing.T) {
	env := setupTestEnv(t)
	registerCompany(t, env.router)
	cookie := login(t, env.router, adminEmail, adminPassword)

	status, body := request(t, env.router, http.MethodPost, "/api/export/jobs", mustJSON(map[string]any{
		"periodFrom": "2026-04-01",
		"periodTo":   "2026-04-30",
		"profileId":  "missing-profile",
	}), cookie)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown profile, got %d: %s", status, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, body, &envelope)
	if envelope.Error.Code != "profile_not_found" {
		t.Fatalf("unexpected error code: %s", body)
	}
}

func TestUpdateUserInOtherCompanyForbidden(t *testing.T) {
	env := setupTestEnv(t)
	companyA := registerCompanyFor(t, env.router, adminEmail)
	companyB := registerCompanyFor(t, env.router, "other-admin@example.com")
	if companyA == companyB {
		t.Fatalf("expected distinct company ids, both were %s", companyA)
	}

	otherCookie := login(t, env.router, "other-admin@example.com", adminPassword)
	_, body := request(t, env.router, http.MethodGet, "/api/auth/me", nil, otherCookie)
	var other struct {
		UID string `json:"uid"`
	}
	decode(t, body, &other)

	cookie := login(t, env.router, adminEmail, adminPassword)
	status, body := request(t, env.router, http.MethodPut, "/api/users", mustJSON(map[string]string{"uid": other.UID, "role": "staff"}), cookie)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for another company's user, got %d: %s", status, body)
	}

	user, err := env.identity.GetUser(context.Background(), other.UID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if identity.ClaimString(user.CustomClaims, "role") != "admin" {
		t.Fatalf("claims of the other company's admin changed: %v", user.CustomClaims)
	}
}

func TestClearingDepartmentRemovesProfileField(t *testing.T) {
	env := setupTestEnv(t)
	companyID := registerCompany(t, env.router)
	cookie := login(t, env.router, adminEmail, adminPassword)

	status, body := upload(t, env.router, cookie, "departments", "departments.csv", []byte("部門コード,部門名\nD01,営業部\n"))
	if status != http.StatusOK {
		t.Fatalf("department import expected 200, got %d: %s", status, body)
	}

	status, body = request(t, env.router, http.MethodPost, "/api/registration/user", mustJSON(map[string]string{
		"email":        "sales@example.com",
		"displayName":  "営業 一郎",
		"role":         "staff",
		"password":     "SalesPass123",
		"departmentId": "D01",
	}), cookie)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var created struct {
		UserID string `json:"userId"`
	}
	decode(t, body, &created)

	status, body = request(t, env.router, http.MethodPut, "/api/users", mustJSON(map[string]string{"uid": created.UserID, "departmentId": ""}), cookie)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	profile, err := env.store.Get(context.Background(), "companies/"+companyID+"/users/"+created.UserID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if _, ok := profile.Data["departmentId"]; ok {
		t.Fatalf("expected departmentId removed from profile, got %v", profile.Data)
	}
	user, err := env.identity.GetUser(context.Background(), created.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if _, ok := user.CustomClaims["departmentId"]; ok {
		t.Fatalf("expected departmentId claim removed, got %v", user.CustomClaims)
	}
}

func setupTestEnv(t *testing.T) testEnv {
	t.Helper()
	return setupTestEnvWithStore(t, func(m *store.Memory) store.Store { return m })
}

func setupTestEnvWithStore(t *testing.T, wrap func(*store.Memory) store.Store) testEnv {
	t.Helper()
	cfg := config.Config{
		Env:                "test",
		IdentityProvider:   config.IdentityLocal,
		LocalAuthSecret:    "integration-secret-at-least-32-bytes!!",
		StoreBackend:       config.StoreMemory,
		SessionCookieName:  "token",
		SessionTTL:         time.Hour,
		OriginCheck:        true,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		APIMaxBodyBytes:    1 << 20,
		ImportMaxFileBytes: 10 << 20,
		ImportMaxRows:      1000,
		RateLimitMaxIPs:    100,
	}
	mem := store.NewMemory()
	local := identity.NewLocal([]byte(cfg.LocalAuthSecret), cfg.SessionTTL)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	router, err := NewRouter(cfg, Deps{Store: wrap(mem), Paths: store.NewPaths("", ""), Identity: local}, logger)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return testEnv{router: router, store: mem, identity: local}
}

func companyPayload() []byte {
	return companyPayloadFor(adminEmail)
}

func companyPayloadFor(email string) []byte {
	return mustJSON(map[string]any{
		"name": "株式会社テスト",
		"adminUser": map[string]string{
			"email":       email,
			"password":    adminPassword,
			"displayName": "管理 花子",
		},
	})
}

func registerCompany(t *testing.T, router http.Handler) string {
	t.Helper()
	return registerCompanyFor(t, router, adminEmail)
}

func registerCompanyFor(t *testing.T, router http.Handler, email string) string {
	t.Helper()
	status, body := request(t, router, http.MethodPost, "/api/registration/company", companyPayloadFor(email), nil)
	if status != http.StatusCreated {
		t.Fatalf("company registration expected 201, got %d: %s", status, body)
	}
	var resp struct {
		CompanyID string `json:"companyId"`
	}
	decode(t, body, &resp)
	if resp.CompanyID == "" {
		t.Fatalf("company id missing: %s", body)
	}
	return resp.CompanyID
}

func login(t *testing.T, router http.Handler, email, password string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(mustJSON(map[string]string{"email": email, "password": password})))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:12345"
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		body, _ := io.ReadAll(rec.Result().Body)
		t.Fatalf("login expected 200, got %d with body: %s", rec.Code, string(body))
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func upload(t *testing.T, router http.Handler, session *http.Cookie, kind, fileName string, data []byte) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("type", kind); err != nil {
		t.Fatalf("write type field: %v", err)
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/masters/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "127.0.0.1:12345"
	req.AddCookie(session)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	resBody, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, resBody
}

func request(t *testing.T, router http.Handler, method, path string, body []byte, session *http.Cookie, extraHeaders ...map[string]string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:12345"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != nil {
		req.AddCookie(session)
	}
	for _, headers := range extraHeaders {
		for key, value := range headers {
			req.Header.Set(key, value)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	resBody, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, resBody
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func decode(t *testing.T, body []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(body, dst); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}
