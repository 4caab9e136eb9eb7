package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"duelpool/internal/core"
	"duelpool/internal/event"
	"duelpool/internal/observability"
	"duelpool/internal/projection"
	"duelpool/internal/query"
	"duelpool/internal/round"
)

// Server exposes the command and query API over HTTP. Commands are fed
// into the core synchronously so callers get the resulting round state
// back; queries read from the projections and never touch core state.
type Server struct {
	core    *core.Core
	queries *query.Service
	db      *sql.DB
	health  *observability.HealthChecker
	metrics *observability.Metrics
	config  core.Config
	logger  zerolog.Logger
}

func NewServer(
	c *core.Core,
	qs *query.Service,
	db *sql.DB,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	config core.Config,
) *Server {
	return &Server{
		core:    c,
		queries: qs,
		db:      db,
		health:  health,
		metrics: metrics,
		config:  config,
		logger:  observability.NewLogger("http"),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/rounds", s.handleCreateRound)
		r.Get("/rounds", s.handleListRounds)
		r.Get("/rounds/count", s.handleRoundCount)
		r.Get("/rounds/{id}", s.handleGetRound)
		r.Get("/rounds/{id}/winner", s.handleGetWinner)
		r.Get("/rounds/{id}/sides", s.handleGetSides)
		r.Post("/rounds/{id}/enter", s.handleEnterRound)
		r.Post("/rounds/{id}/close", s.handleCloseRound)

		r.Get("/balances/{user}", s.handleGetBalance)
		r.Get("/users/{user}/journal", s.handleJournalHistory)

		r.Get("/admin/integrity", s.handleIntegrity)
		r.Post("/admin/rebuild-balances", s.handleRebuildBalances)
	})

	return r
}

type createRoundRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Creator   string `json:"creator"`
	Side      string `json:"side"`
	Stake     int64  `json:"stake"`
	Asset     string `json:"asset,omitempty"`
}

type createRoundResponse struct {
	RoundID  int64  `json:"round_id"`
	Status   string `json:"status"`
	Sequence int64  `json:"sequence"`
}

func (s *Server) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req createRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "create_round", http.StatusBadRequest, "invalid request body")
		return
	}

	creator, err := uuid.Parse(req.Creator)
	if err != nil {
		s.writeError(w, "create_round", http.StatusBadRequest, "invalid creator id")
		return
	}
	choice, err := round.ParseSide(req.Side)
	if err != nil {
		s.writeError(w, "create_round", http.StatusBadRequest, err.Error())
		return
	}
	if req.Stake <= 0 {
		s.writeError(w, "create_round", http.StatusBadRequest, "stake must be positive")
		return
	}
	requestID, err := parseOrNewRequestID(req.RequestID)
	if err != nil {
		s.writeError(w, "create_round", http.StatusBadRequest, "invalid request_id")
		return
	}
	asset := req.Asset
	if asset == "" {
		asset = s.config.DefaultAsset
	}

	result, err := s.core.Submit(r.Context(), &event.RoundCreate{
		RequestID: requestID,
		Creator:   creator,
		Side:      choice,
		Stake:     req.Stake,
		Asset:     asset,
		Sequence:  time.Now().UnixMicro(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.writeCommandError(w, "create_round", err)
		return
	}

	s.observe("create_round", start)
	s.writeJSON(w, http.StatusCreated, createRoundResponse{
		RoundID:  result.Round.ID,
		Status:   result.Round.Status.String(),
		Sequence: result.Sequence,
	})
}

type enterRoundRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Entrant   string `json:"entrant"`
}

type roundOutcomeResponse struct {
	RoundID  int64  `json:"round_id"`
	Status   string `json:"status"`
	Winner   string `json:"winner,omitempty"`
	Sequence int64  `json:"sequence"`
}

func (s *Server) handleEnterRound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	roundID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, "enter_round", http.StatusBadRequest, "invalid round id")
		return
	}
	var req enterRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "enter_round", http.StatusBadRequest, "invalid request body")
		return
	}
	entrant, err := uuid.Parse(req.Entrant)
	if err != nil {
		s.writeError(w, "enter_round", http.StatusBadRequest, "invalid entrant id")
		return
	}
	requestID, err := parseOrNewRequestID(req.RequestID)
	if err != nil {
		s.writeError(w, "enter_round", http.StatusBadRequest, "invalid request_id")
		return
	}

	result, err := s.core.Submit(r.Context(), &event.RoundEnter{
		RequestID: requestID,
		Entrant:   entrant,
		RoundID:   roundID,
		Sequence:  time.Now().UnixMicro(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.writeCommandError(w, "enter_round", err)
		return
	}

	resp := roundOutcomeResponse{
		RoundID:  result.Round.ID,
		Status:   result.Round.Status.String(),
		Sequence: result.Sequence,
	}
	if result.Round.Winner != uuid.Nil {
		resp.Winner = result.Round.Winner.String()
	}
	s.observe("enter_round", start)
	s.writeJSON(w, http.StatusOK, resp)
}

type closeRoundRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Caller    string `json:"caller"`
}

func (s *Server) handleCloseRound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	roundID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, "close_round", http.StatusBadRequest, "invalid round id")
		return
	}
	var req closeRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "close_round", http.StatusBadRequest, "invalid request body")
		return
	}
	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		s.writeError(w, "close_round", http.StatusBadRequest, "invalid caller id")
		return
	}
	requestID, err := parseOrNewRequestID(req.RequestID)
	if err != nil {
		s.writeError(w, "close_round", http.StatusBadRequest, "invalid request_id")
		return
	}

	result, err := s.core.Submit(r.Context(), &event.RoundClose{
		RequestID: requestID,
		Caller:    caller,
		RoundID:   roundID,
		Sequence:  time.Now().UnixMicro(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.writeCommandError(w, "close_round", err)
		return
	}

	resp := roundOutcomeResponse{
		RoundID:  result.Round.ID,
		Status:   result.Round.Status.String(),
		Sequence: result.Sequence,
	}
	if result.Round.Winner != uuid.Nil {
		resp.Winner = result.Round.Winner.String()
	}
	s.observe("close_round", start)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	roundID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, "get_round", http.StatusBadRequest, "invalid round id")
		return
	}
	resp, err := s.queries.GetRound(r.Context(), roundID)
	if err != nil {
		s.writeQueryError(w, "get_round", err)
		return
	}
	s.observe("get_round", start)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var status *string
	if v := r.URL.Query().Get("status"); v != "" {
		status = &v
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.writeError(w, "list_rounds", http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	var beforeID *int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, "list_rounds", http.StatusBadRequest, "invalid before cursor")
			return
		}
		beforeID = &n
	}

	rounds, err := s.queries.ListRounds(r.Context(), status, limit, beforeID)
	if err != nil {
		s.writeQueryError(w, "list_rounds", err)
		return
	}
	s.observe("list_rounds", start)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"rounds": rounds})
}

func (s *Server) handleRoundCount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	resp, err := s.queries.GetRoundCount(r.Context())
	if err != nil {
		s.writeQueryError(w, "round_count", err)
		return
	}
	s.observe("round_count", start)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetWinner(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	roundID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, "get_winner", http.StatusBadRequest, "invalid round id")
		return
	}
	resp, err := s.queries.GetWinner(r.Context(), roundID)
	if err != nil {
		s.writeQueryError(w, "get_winner", err)
		return
	}
	s.observe("get_winner", start)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSides(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	roundID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, "get_sides", http.StatusBadRequest, "invalid round id")
		return
	}
	resp, err := s.queries.GetSides(r.Context(), roundID)
	if err != nil {
		s.writeQueryError(w, "get_sides", err)
		return
	}
	s.observe("get_sides", start)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID, err := uuid.Parse(chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, "get_balance", http.StatusBadRequest, "invalid user id")
		return
	}
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		asset = s.config.DefaultAsset
	}

	resp, err := s.queries.GetBalance(r.Context(), userID, asset)
	if err != nil {
		s.writeQueryError(w, "get_balance", err)
		return
	}
	s.observe("get_balance", start)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJournalHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID, err := uuid.Parse(chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, "journal_history", http.StatusBadRequest, "invalid user id")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			s.writeError(w, "journal_history", http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	var afterSeq *int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, "journal_history", http.StatusBadRequest, "invalid after cursor")
			return
		}
		afterSeq = &n
	}

	entries, err := s.queries.GetJournalHistory(r.Context(), userID, limit, afterSeq)
	if err != nil {
		s.writeQueryError(w, "journal_history", err)
		return
	}
	s.observe("journal_history", start)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeQueryError(w, "integrity", err)
		return
	}
	s.observe("integrity", start)
	s.writeJSON(w, http.StatusOK, report)
}

// handleRebuildBalances truncates and rebuilds the balance projection from
// the journal. Synchronous; intended for operators after projection drops.
func (s *Server) handleRebuildBalances(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := projection.RebuildBalances(r.Context(), s.db); err != nil {
		s.logger.Error().Err(err).Msg("balance rebuild failed")
		s.writeError(w, "rebuild_balances", http.StatusInternalServerError, "rebuild failed")
		return
	}
	s.logger.Info().Dur("elapsed", time.Since(start)).Msg("balance projection rebuilt")
	s.observe("rebuild_balances", start)
	s.writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}

// parseOrNewRequestID accepts a client-supplied idempotency key or mints
// one. Clients that want retry safety must supply their own.
func parseOrNewRequestID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(raw)
}

func (s *Server) writeCommandError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, round.ErrRoundNotFound):
		s.writeError(w, endpoint, http.StatusNotFound, err.Error())
	case errors.Is(err, round.ErrBetTooSmall):
		s.writeError(w, endpoint, http.StatusBadRequest, err.Error())
	case errors.Is(err, round.ErrInsufficientFunds):
		s.writeError(w, endpoint, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, round.ErrRoundAlreadyResolved):
		s.writeError(w, endpoint, http.StatusConflict, err.Error())
	case errors.Is(err, round.ErrNotParticipant):
		s.writeError(w, endpoint, http.StatusForbidden, err.Error())
	default:
		s.logger.Error().Err(err).Str("endpoint", endpoint).Msg("command failed")
		s.writeError(w, endpoint, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeQueryError(w http.ResponseWriter, endpoint string, err error) {
	if errors.Is(err, round.ErrRoundNotFound) {
		s.writeError(w, endpoint, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error().Err(err).Str("endpoint", endpoint).Msg("query failed")
	s.writeError(w, endpoint, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, status int, msg string) {
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
		s.metrics.QueryRequests.WithLabelValues(endpoint, "error").Inc()
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) observe(endpoint string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, "ok").Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
