package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/modreports/internal/core"
	"github.com/JonMunkholm/modreports/internal/export"
	"github.com/JonMunkholm/modreports/internal/report"
)

// multipartOverhead is allowed on top of IMPORT_MAX_FILE_SIZE for form
// boundaries and headers.
const multipartOverhead = 1 << 20

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 32 << 20

type reportsResponse struct {
	Count   int             `json:"count"`
	Reports []report.Report `json:"reports"`
}

type execRequest struct {
	Statement string `json:"statement"`
}

type execResponse struct {
	RowsAffected int64 `json:"rows_affected"`
}

type healthResponse struct {
	Status  string             `json:"status"`
	Imports core.LimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Imports: s.service.LimiterStatus()}
	if err := s.service.Ping(r.Context()); err != nil {
		slogFor(r).Error("health check failed", "error", err)
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.LimiterStatus())
}

func writeReports(w http.ResponseWriter, reports []report.Report) {
	if reports == nil {
		reports = []report.Report{}
	}
	writeJSON(w, http.StatusOK, reportsResponse{Count: len(reports), Reports: reports})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.service.Reports(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeReports(w, reports)
}

func (s *Server) handleReportsByTarget(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")
	if targetID == "" {
		writeError(w, r, http.StatusBadRequest, "missing target id")
		return
	}

	reports, err := s.service.ReportsByTarget(r.Context(), targetID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeReports(w, reports)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	targetID := strings.TrimSpace(r.URL.Query().Get("target_id"))

	var (
		reports []report.Report
		err     error
	)
	if targetID != "" {
		reports, err = s.service.ReportsByTarget(r.Context(), targetID)
	} else {
		reports, err = s.service.Reports(r.Context())
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, reports, export.Options{Table: s.service.Table(), TargetID: targetID}); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	filename := "reports.xlsx"
	if targetID != "" {
		filename = fmt.Sprintf("reports-%s.xlsx", sanitizeFilename(targetID))
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleImport runs a synchronous import of the multipart "file" field.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: request body over %d bytes", core.ErrFileTooLarge, tooLarge.Limit), 0)
			return
		}
		s.respondError(w, r, fmt.Errorf("invalid csv upload form: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	res, err := s.service.ImportReader(r.Context(), header.Filename, file)
	if err != nil {
		s.respondImportError(w, r, err, 0, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Statement) == "" {
		writeError(w, r, http.StatusBadRequest, "statement is required")
		return
	}

	n, err := s.service.Exec(r.Context(), req.Statement)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, core.ErrExecDisabled) {
			status = http.StatusForbidden
		}
		s.respondError(w, r, err, status)
		return
	}
	writeJSON(w, http.StatusOK, execResponse{RowsAffected: n})
}

// sanitizeFilename keeps ASCII letters, digits, '-' and '_'.
func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
