package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/modreports/internal/config"
	"github.com/JonMunkholm/modreports/internal/core"
	"github.com/JonMunkholm/modreports/internal/export"
	"github.com/JonMunkholm/modreports/internal/storage"
	_ "github.com/JonMunkholm/modreports/internal/storage/sqlite"
)

const createReportsTable = `CREATE TABLE reports (
	uuid TEXT, decision_visibility TEXT, decision_visibility_other TEXT,
	end_date_visibility_restriction TEXT, decision_monetary TEXT, decision_monetary_other TEXT,
	end_date_monetary_restriction TEXT, decision_provision TEXT, end_date_service_restriction TEXT,
	decision_account TEXT, end_date_account_restriction TEXT, account_type TEXT,
	decision_ground TEXT, decision_ground_reference_url TEXT, illegal_content_legal_ground TEXT,
	incompatible_content_ground TEXT, incompatible_content_illegal TEXT, category TEXT,
	category_addition TEXT, category_specification TEXT, category_specification_other TEXT,
	content_type TEXT, content_type_other TEXT, content_language TEXT, content_date TEXT,
	application_date TEXT, source_type TEXT, source_identity TEXT, automated_detection TEXT,
	automated_decision TEXT, platform_name TEXT, platform_uid TEXT UNIQUE, created_at TEXT,
	report_id TEXT, target_id TEXT, report_type TEXT
)`

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{
			Table:          "reports",
			MaxFileSize:    1 << 20,
			MaxConcurrent:  2,
			MaxWaitTime:    time.Second,
			Timeout:        time.Minute,
			SourceEncoding: "utf-8",
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if _, err := store.Exec(ctx, createReportsTable); err != nil {
		t.Fatalf("create table: %v", err)
	}

	svc, err := core.NewService(store, cfg.Import)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	s := NewServer(svc, cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func importCSV(t *testing.T, s *Server, content string) core.ImportResult {
	t.Helper()
	rec := do(t, s, uploadRequest(t, "file", "reports.csv", content))
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rec.Code, rec.Body.String())
	}
	var res core.ImportResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode import result: %v", err)
	}
	return res
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return e
}

const sampleCSV = "uuid,platform_uid,created_at,category\n" +
	"u1,r1-t1-post,2024-01-01,STATEMENT_CATEGORY_SCAMS\n" +
	"u2,r2-t1-post,2024-02-01,STATEMENT_CATEGORY_SCAMS\n" +
	"u3,r3-t2-comment,2024-03-01,STATEMENT_CATEGORY_VIOLENCE\n"

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var h healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Imports.MaxConcurrent != 2 {
		t.Errorf("health = %+v", h)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestImportAndQuery(t *testing.T) {
	s := newTestServer(t, testConfig())

	res := importCSV(t, s, sampleCSV)
	if !res.Committed || res.Inserted != 3 || res.ImportID == "" {
		t.Fatalf("import result = %+v", res)
	}

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var all reportsResponse
	if err := json.NewDecoder(rec.Body).Decode(&all); err != nil {
		t.Fatal(err)
	}
	if all.Count != 3 || len(all.Reports) != 3 {
		t.Errorf("count = %d, len = %d, want 3", all.Count, len(all.Reports))
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/reports/target/t1", nil))
	var byTarget reportsResponse
	if err := json.NewDecoder(rec.Body).Decode(&byTarget); err != nil {
		t.Fatal(err)
	}
	if byTarget.Count != 2 {
		t.Fatalf("t1 count = %d, want 2", byTarget.Count)
	}
	if *byTarget.Reports[0].ReportID != "r2" || *byTarget.Reports[1].ReportID != "r1" {
		t.Errorf("t1 not newest first: %s, %s", *byTarget.Reports[0].ReportID, *byTarget.Reports[1].ReportID)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/reports/target/nobody", nil))
	if !strings.Contains(rec.Body.String(), `"reports":[]`) {
		t.Errorf("empty target body = %s, want empty array", rec.Body.String())
	}
}

func TestImport_RowErrorsReported(t *testing.T) {
	s := newTestServer(t, testConfig())

	res := importCSV(t, s, "uuid,platform_uid\nu1,r1-t1-post\nu2,r1-t1-post\n")
	if res.Inserted != 1 || res.Skipped != 1 || len(res.RowErrors) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.RowErrors[0].Line != 3 {
		t.Errorf("row error line = %d, want 3", res.RowErrors[0].Line)
	}
}

func TestImport_Failures(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name:     "empty file",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "file", "empty.csv", "") },
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE005",
		},
		{
			name:     "wrong field",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "upload", "x.csv", "uuid\nu1\n") },
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE004",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader("uuid\nu1\n"))
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig())
			rec := do(t, s, tt.req(t))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if e := decodeError(t, rec); e.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", e.Code, tt.wantErr)
			}
		})
	}
}

func TestImport_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 16
	s := newTestServer(t, cfg)

	rec := do(t, s, uploadRequest(t, "file", "big.csv", "uuid\n"+strings.Repeat("u\n", 100)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413: %s", rec.Code, rec.Body.String())
	}
	e := decodeError(t, rec)
	if e.Code != "FILE001" {
		t.Errorf("code = %q, want FILE001", e.Code)
	}
	if e.Import == nil || e.Import.Committed {
		t.Errorf("partial import = %+v, want uncommitted result", e.Import)
	}
}

func TestExportXLSX(t *testing.T) {
	s := newTestServer(t, testConfig())
	importCSV(t, s, sampleCSV)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/reports/export.xlsx?target_id=t2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "reports-t2.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(export.ReportsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d, want header + 1", len(rows))
	}
}

func TestExec(t *testing.T) {
	body := func(stmt string) *strings.Reader {
		b, _ := json.Marshal(execRequest{Statement: stmt})
		return strings.NewReader(string(b))
	}

	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, testConfig())
		rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/exec", body("DELETE FROM reports")))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		if e := decodeError(t, rec); e.Code != "IMP004" {
			t.Errorf("code = %q, want IMP004", e.Code)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Import.ExecEnabled = true
		s := newTestServer(t, cfg)
		importCSV(t, s, sampleCSV)

		rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/exec", body("DELETE FROM reports WHERE target_id = 't1'")))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var out execResponse
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.RowsAffected != 2 {
			t.Errorf("rows_affected = %d, want 2", out.RowsAffected)
		}

		rec = do(t, s, httptest.NewRequest(http.MethodPost, "/api/exec", body("SELEC nonsense")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("bad statement status = %d, want 400", rec.Code)
		}

		rec = do(t, s, httptest.NewRequest(http.MethodPost, "/api/exec", strings.NewReader(`{"statement":""}`)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("empty statement status = %d, want 400", rec.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportLimit: 1}
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		if rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if e := decodeError(t, rec); e.Code != "RATE001" {
		t.Errorf("code = %q, want RATE001", e.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(0, 0)
	rl := &rateLimiter{
		visitors: map[string]*visitor{},
		rate:     1,
		window:   time.Minute,
		now:      func() time.Time { return now },
		done:     make(chan struct{}),
	}

	if !rl.allow("1.2.3.4") {
		t.Fatal("first request denied")
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("second request allowed within window")
	}
	if !rl.allow("5.6.7.8") {
		t.Fatal("other ip denied")
	}
	now = now.Add(2 * time.Minute)
	if !rl.allow("1.2.3.4") {
		t.Fatal("request denied after window reset")
	}
	rl.stop()
	rl.stop()
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyImports, http.StatusServiceUnavailable},
		{core.ErrExecDisabled, http.StatusForbidden},
		{&core.ImportError{Phase: core.PhaseRows, Kind: core.ErrTransaction, Err: storage.ErrBusy}, http.StatusServiceUnavailable},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&core.ImportError{Phase: core.PhaseHeader, Kind: core.ErrHeader, Err: errorString("empty file")}, http.StatusBadRequest},
		{&core.ImportError{Phase: core.PhaseCommit, Kind: core.ErrTransaction, Err: errorString("disk full")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := sanitizeFilename(`t1/../"x"`); got != "t1_____x_" {
		t.Errorf("sanitizeFilename = %q", got)
	}
}
