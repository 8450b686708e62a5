// Package httpapi exposes the pairing engine over a polling HTTP interface.
// Clients that cannot hold a WebSocket open drive the same lifecycle by
// posting heartbeats, partner requests and sync calls; inbound messages and
// signals are queued server-side and drained on each sync.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zingo/pair-server/internal/engine"
	"github.com/zingo/pair-server/internal/metrics"
	"github.com/zingo/pair-server/internal/ratelimit"
	"github.com/zingo/pair-server/internal/report"
)

// API holds the handler dependencies. Reports and the rate limiter are
// optional; without a report store reports are logged only, and without a
// limiter no throttling is applied.
type API struct {
	engine  *engine.Controller
	limiter *ratelimit.Limiter
	reports *report.Store
}

// New creates the API around the given engine. limiter and reports may be
// nil.
func New(eng *engine.Controller, limiter *ratelimit.Limiter, reports *report.Store) *API {
	return &API{engine: eng, limiter: limiter, reports: reports}
}

// Router builds the chi router with all API routes mounted.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(cors.AllowAll().Handler)

	r.Get("/health", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/heartbeat", a.handleHeartbeat)
		r.Post("/find_partner", a.handleFindPartner)
		r.Post("/sync", a.handleSync)
		r.Post("/send_message", a.handleSendMessage)
		r.Post("/send_signal", a.handleSendSignal)
		r.Post("/report", a.handleReport)
	})

	return r
}

// ---------------------------------------------------------------------------
// Request / response shapes
// ---------------------------------------------------------------------------

type heartbeatRequest struct {
	UID string `json:"uid"`
}

type heartbeatResponse struct {
	OnlineCount int `json:"online_count"`
}

type findPartnerRequest struct {
	UID  string `json:"uid"`
	Stop bool   `json:"stop"`
}

type findPartnerResponse struct {
	Status     string `json:"status"`
	PartnerUID string `json:"partner_uid,omitempty"`
	RoomID     string `json:"room_id,omitempty"`
	Initiator  bool   `json:"initiator,omitempty"`
}

type syncRequest struct {
	UID string `json:"uid"`
}

type syncMessage struct {
	FromUID   string `json:"from_uid"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type syncSignal struct {
	FromUID   string          `json:"from_uid"`
	Signal    json.RawMessage `json:"signal"`
	Timestamp int64           `json:"timestamp"`
}

type syncResponse struct {
	PartnerUID string        `json:"partner_uid"`
	Messages   []syncMessage `json:"messages"`
	Signals    []syncSignal  `json:"signals"`
}

type sendMessageRequest struct {
	UID        string `json:"uid"`
	PartnerUID string `json:"partner_uid"`
	Message    string `json:"message"`
}

type sendSignalRequest struct {
	UID        string          `json:"uid"`
	PartnerUID string          `json:"partner_uid"`
	Signal     json.RawMessage `json:"signal"`
}

type reportRequest struct {
	UID        string `json:"uid"`
	PartnerUID string `json:"partner_uid"`
	Reason     string `json:"reason"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if !decode(w, r, &req) {
		return
	}

	count, err := a.engine.Announce(r.Context(), req.UID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, heartbeatResponse{OnlineCount: count})
}

func (a *API) handleFindPartner(w http.ResponseWriter, r *http.Request) {
	var req findPartnerRequest
	if !decode(w, r, &req) {
		return
	}

	if !a.allow(r.Context(), req.UID, ratelimit.RuleFindPartner) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limited"})
		return
	}

	res, err := a.engine.RequestPartner(r.Context(), req.UID, req.Stop)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, findPartnerResponse{
		Status:     string(res.Status),
		PartnerUID: res.PartnerUID,
		RoomID:     res.RoomID,
		Initiator:  res.Initiator,
	})
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := a.engine.Sync(r.Context(), req.UID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := syncResponse{
		PartnerUID: res.PartnerUID,
		Messages:   make([]syncMessage, 0, len(res.Messages)),
		Signals:    make([]syncSignal, 0, len(res.Signals)),
	}
	for _, item := range res.Messages {
		resp.Messages = append(resp.Messages, syncMessage{
			FromUID:   item.From,
			Message:   item.Payload,
			Timestamp: item.SentAt,
		})
	}
	for _, item := range res.Signals {
		sig := json.RawMessage(item.Payload)
		if !json.Valid(sig) {
			// Payloads are stored verbatim; wrap anything that is not
			// already JSON so the response stays well formed.
			sig, _ = json.Marshal(item.Payload)
		}
		resp.Signals = append(resp.Signals, syncSignal{
			FromUID:   item.From,
			Signal:    sig,
			Timestamp: item.SentAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}

	if !a.allow(r.Context(), req.UID, ratelimit.RuleMessage) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limited"})
		return
	}

	if err := a.engine.SendMessage(r.Context(), req.UID, req.PartnerUID, req.Message); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "sent"})
}

func (a *API) handleSendSignal(w http.ResponseWriter, r *http.Request) {
	var req sendSignalRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Signal) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing signal"})
		return
	}

	if err := a.engine.SendSignal(r.Context(), req.UID, req.PartnerUID, string(req.Signal)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "sent"})
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UID == "" || req.PartnerUID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing uid"})
		return
	}
	if !report.ValidReason(req.Reason) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid reason"})
		return
	}

	roomID := ""
	if m, err := a.engine.Match(r.Context(), req.UID); err == nil && m != nil {
		roomID = m.RoomID
	}

	if a.reports != nil {
		err := a.reports.Create(r.Context(), &report.Report{
			ReporterUID: req.UID,
			ReportedUID: req.PartnerUID,
			RoomID:      roomID,
			Reason:      req.Reason,
		})
		if err != nil {
			// The report still counts for the client; persistence is best
			// effort when the database is down.
			log.Printf("[api] report persist failed: %v", err)
		}
	} else {
		log.Printf("[api] report (log only): reporter=%s reported=%s reason=%s room=%s",
			req.UID, req.PartnerUID, req.Reason, roomID)
	}
	metrics.ReportsFiledTotal.Inc()

	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// allow applies the rate limit rule, failing open when no limiter is wired.
func (a *API) allow(ctx context.Context, uid string, rule ratelimit.Rule) bool {
	if a.limiter == nil || uid == "" {
		return true
	}
	ok, _ := a.limiter.Allow(ctx, uid, rule)
	return ok
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrInvalidRequest) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}
	log.Printf("[api] internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
