package http

import (
	"context"
	"net/http"
	"time"

	"personalos/internal/log"
)

// isoMillis matches the timestamps the dashboard front end has always
// received: UTC with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": formatTime(s.now()),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether the journal is loaded and the snapshot
// history is reachable. Stripe and Notion are reported but never make
// the service unready: their endpoints degrade on their own.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)
	fail := func(name, msg string) {
		checks[name] = "failed: " + msg
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.journal == nil {
		fail("journal", "not loaded")
	} else if dates, err := s.journal.Dates(ctx); err != nil {
		fail("journal", err.Error())
	} else {
		checks["journal"] = map[string]any{"status": "ok", "entries": len(dates)}
	}

	if s.history == nil {
		checks["history"] = "not_configured"
	} else if err := s.history.Ping(ctx); err != nil {
		fail("history", err.Error())
	} else {
		checks["history"] = "ok"
	}

	checks["stripe"] = configured(s.business != nil)
	checks["notion"] = configured(s.content != nil)
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	if httpStatus != http.StatusOK {
		s.logger.WarnContext(ctx, "Readiness check failed", "checks", checks, log.FieldOperation, "readiness")
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": formatTime(s.now()),
		"checks":    checks,
	}).Write(w)
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not_configured"
}
