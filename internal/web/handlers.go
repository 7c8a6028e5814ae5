package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/phantom/internal/core"
	"github.com/JonMunkholm/phantom/internal/logging"
)

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to temporary files.
const multipartMemory = 32 << 20

// ImportResponse is the body of a completed import or check.
type ImportResponse struct {
	RunID      string                 `json:"run_id"`
	State      core.ImportState       `json:"state"`
	Records    int                    `json:"records"`
	Inserted   int                    `json:"inserted"`
	Duplicates []core.DuplicateReport `json:"duplicates"`
	DurationMS int64                  `json:"duration_ms"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Tables  core.TableCounts         `json:"tables"`
	Imports core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImport reads a people CSV from the request and imports it.
// The CSV is either the raw body or the "file" field of a multipart form.
// POST /api/imports also honors ?check_only=true.
func (s *Server) handleImport(checkOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.FromContext(r.Context())

		check := checkOnly
		if v := r.URL.Query().Get("check_only"); v != "" && !checkOnly {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeJSON(w, r, http.StatusBadRequest, ErrorResponse{
					Error:   "invalid check_only value",
					Message: "check_only must be true or false",
					Code:    "REQ001",
				})
				return
			}
			check = b
		}

		maxSize := s.cfg.Import.MaxFileSize
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)

		src, closeSrc, err := requestSource(r)
		if err != nil {
			respondError(w, r, err, 0, "")
			return
		}
		defer closeSrc()

		if !s.limiter.TryAcquire() {
			logger.Info("import queued", "active", s.limiter.ActiveCount())
			if err := s.limiter.Acquire(r.Context()); err != nil {
				if errors.Is(err, core.ErrTooManyImports) {
					w.Header().Set("Retry-After", "5")
				}
				respondError(w, r, err, 0, "")
				return
			}
		}
		defer s.limiter.Release()

		records, err := core.ParseRecords(src, maxSize)
		if err != nil {
			respondError(w, r, tooLarge(err), 0, "")
			return
		}

		ctx := r.Context()
		if s.cfg.Import.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.Import.Timeout)
			defer cancel()
		}

		result, err := s.importer.Import(ctx, records, check)
		if err != nil {
			respondError(w, r, err, 0, result.RunID)
			return
		}

		logger.Info("import finished",
			"run_id", result.RunID,
			"state", result.State,
			"records", result.Records,
			"inserted", result.Inserted,
			"duplicates", len(result.Duplicates),
		)

		status := http.StatusOK
		if result.State == core.StateBlocked && !check {
			status = http.StatusConflict
		}

		writeJSON(w, r, status, ImportResponse{
			RunID:      result.RunID,
			State:      result.State,
			Records:    result.Records,
			Inserted:   result.Inserted,
			Duplicates: result.Duplicates,
			DurationMS: result.Duration.Milliseconds(),
		})
	}
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.limiter.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Imports: s.limiter.Status()}

	if s.counter != nil {
		counts, err := s.counter.Counts(r.Context())
		if err != nil {
			respondError(w, r, err, 0, "")
			return
		}
		resp.Tables = counts
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// requestSource returns the CSV stream of r and a func releasing it.
func requestSource(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, nil, tooLarge(fmt.Errorf("%w: %w", core.ErrSourceFormat, err))
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, &core.FormatError{Reason: "no file provided"}
	}

	return file, func() {
		file.Close()
		r.MultipartForm.RemoveAll()
	}, nil
}

// tooLarge marks errors caused by http.MaxBytesReader as ErrSourceTooLarge.
func tooLarge(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) && !errors.Is(err, core.ErrSourceTooLarge) {
		return fmt.Errorf("%w: %w", core.ErrSourceTooLarge, err)
	}
	return err
}
