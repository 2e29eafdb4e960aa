package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/heitor/internal/reports"
	"github.com/wolfman30/heitor/pkg/logging"
)

// DigestBuilder produces activity digests.
type DigestBuilder interface {
	Daily(ctx context.Context, day time.Time) (reports.Digest, error)
	Weekly(ctx context.Context, ref time.Time) (reports.Digest, error)
}

// AdminReportsHandler exposes the daily and weekly digests.
type AdminReportsHandler struct {
	builder DigestBuilder
	loc     *time.Location
	logger  *logging.Logger
	now     func() time.Time
}

func NewAdminReportsHandler(builder DigestBuilder, loc *time.Location, logger *logging.Logger) *AdminReportsHandler {
	if builder == nil {
		panic("handlers: digest builder cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminReportsHandler{builder: builder, loc: loc, logger: logger, now: time.Now}
}

type digestResponse struct {
	reports.Digest
	Text string `json:"text"`
}

// GetDaily handles GET /admin/reports/daily?date=YYYY-MM-DD.
func (h *AdminReportsHandler) GetDaily(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.builder.Daily)
}

// GetWeekly handles GET /admin/reports/weekly?date=YYYY-MM-DD.
func (h *AdminReportsHandler) GetWeekly(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.builder.Weekly)
}

func (h *AdminReportsHandler) serve(w http.ResponseWriter, r *http.Request, build func(context.Context, time.Time) (reports.Digest, error)) {
	ref := h.now().In(h.loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		t, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		ref = t
	}

	d, err := build(r.Context(), ref)
	if err != nil {
		h.logger.Error("failed to build digest", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, digestResponse{Digest: d, Text: reports.Render(d)})
}
