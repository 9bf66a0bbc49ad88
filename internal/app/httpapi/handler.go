// Package httpapi exposes the engine's REST surface. Authentication of the
// administrative caller is handled upstream; this layer only shapes
// requests and responses.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/gm_engine/internal/app"
	admindomain "github.com/R3E-Network/gm_engine/internal/app/domain/admin"
	missionsdomain "github.com/R3E-Network/gm_engine/internal/app/domain/missions"
	"github.com/R3E-Network/gm_engine/internal/app/metrics"
	adminresetsvc "github.com/R3E-Network/gm_engine/internal/app/services/adminreset"
	leaderboardsvc "github.com/R3E-Network/gm_engine/internal/app/services/leaderboard"
	missionsvc "github.com/R3E-Network/gm_engine/internal/app/services/missions"
	streaksvc "github.com/R3E-Network/gm_engine/internal/app/services/streak"
	"github.com/R3E-Network/gm_engine/internal/httputil"
	"github.com/R3E-Network/gm_engine/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app          *app.Application
	log          *logger.Logger
	adminLimiter *rate.Limiter
	audit        *auditLog
}

// New returns the engine router.
func New(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		app: application,
		log: log,
		// Resets are rare and operator-triggered; anything faster than a
		// small burst per minute is a runaway caller.
		adminLimiter: rate.NewLimiter(rate.Limit(1.0/60), 3),
		audit:        newAuditLog(200),
	}

	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.NotFound(w, "no route for "+req.URL.Path)
	})

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/activity/{address}", h.trackActivity).Methods(http.MethodPost)
	v1.HandleFunc("/streaks/{address}", h.getStreak).Methods(http.MethodGet)
	v1.HandleFunc("/missions/{address}/tasks", h.applyTask).Methods(http.MethodPost)
	v1.HandleFunc("/missions/{address}", h.getMissionDay).Methods(http.MethodGet)
	v1.HandleFunc("/leaderboards", h.leaderboards).Methods(http.MethodGet)
	v1.HandleFunc("/admin/reset", h.adminReset).Methods(http.MethodPost)
	v1.HandleFunc("/admin/audit", h.adminAudit).Methods(http.MethodGet)

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) trackActivity(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Streaks.TrackDailyActivity(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *handler) getStreak(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Streaks.Get(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

type applyTaskInput struct {
	TaskID string          `json:"task_id"`
	Count  int             `json:"count"`
	Proof  json.RawMessage `json:"proof"`
}

func (h *handler) applyTask(w http.ResponseWriter, r *http.Request) {
	var input applyTaskInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	input.TaskID = strings.TrimSpace(input.TaskID)
	if input.TaskID == "" {
		httputil.BadRequest(w, "task_id required")
		return
	}

	day, err := h.app.Missions.ApplyTask(r.Context(), mux.Vars(r)["address"], input.TaskID, input.Proof, input.Count)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, day)
}

func (h *handler) getMissionDay(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Missions.GetDay(r.Context(), mux.Vars(r)["address"], r.URL.Query().Get("day"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *handler) leaderboards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.app.Leaderboards.Leaderboards(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, boards)
}

type adminResetInput struct {
	Scope string `json:"scope"`
}

func (h *handler) adminReset(w http.ResponseWriter, r *http.Request) {
	if !h.adminLimiter.Allow() {
		httputil.TooManyRequests(w, "reset rate limit exceeded")
		return
	}

	var input adminResetInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	audit, err := h.app.AdminReset.Reset(r.Context(), admindomain.Scope(input.Scope))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.audit.add(auditEntry{
		Time:       audit.At,
		Scope:      string(audit.Scope),
		Deleted:    audit.DeletedKeys,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"deleted_count": audit.DeletedKeys})
}

func (h *handler) adminAudit(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.audit.list())
}

// writeServiceError maps service failures onto HTTP statuses. Contention is
// a 409 so callers know to retry the whole operation.
func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, missionsvc.ErrUpdateContention):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, missionsdomain.ErrUnknownTask),
		errors.Is(err, missionsvc.ErrInvalidAddress),
		errors.Is(err, missionsvc.ErrInvalidDay),
		errors.Is(err, streaksvc.ErrInvalidAddress),
		errors.Is(err, leaderboardsvc.ErrInvalidMonth),
		errors.Is(err, adminresetsvc.ErrInvalidScope):
		httputil.BadRequest(w, err.Error())
	default:
		h.log.WithError(err).Error("request failed")
		httputil.InternalError(w, err.Error())
	}
}
