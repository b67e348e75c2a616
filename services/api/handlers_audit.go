package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"activityaudit/services/audit"
)

func (a *API) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}

	page, err := a.svc.Query.List(r.Context(), identityFrom(r.Context()), limit, offset)
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (a *API) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Query.Stats(r.Context(), identityFrom(r.Context()))
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (a *API) handlePurge(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	res, err := a.svc.Sweeper.Sweep(r.Context())
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	a.logger.Info().Str("admin", id.Subject).Int64("deleted", res.Deleted).Msg("manual audit purge")
	respondJSON(w, http.StatusOK, res)
}

// handleExport streams the CSV export. Once bytes have reached the client a
// failure can no longer be reported as a status, so the connection is aborted
// instead.
func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("audit-logs-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	cw := &countingWriter{w: w}
	rows, err := a.svc.Query.Export(r.Context(), identityFrom(r.Context()), cw)
	if err == nil {
		return
	}
	if cw.n == 0 {
		w.Header().Del("Content-Disposition")
		a.respondServiceError(w, r, err)
		return
	}

	a.logger.Error().Err(err).Int64("rows", rows).Msg("audit export aborted")
	panic(http.ErrAbortHandler)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if f, ok := c.w.(http.Flusher); ok && err == nil {
		f.Flush()
	}
	return n, err
}

func intParam(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", audit.ErrValidation, key)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s must be non-negative", audit.ErrValidation, key)
	}
	return v, nil
}
