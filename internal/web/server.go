package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gigpay/treasuryops/internal/entity"
	"github.com/gigpay/treasuryops/internal/services/gatekeeper"
	"github.com/gigpay/treasuryops/internal/services/intent"
)

type viewController interface {
	View() entity.View
	Refresh(ctx context.Context, r entity.Range) entity.View
	RefreshJobs(ctx context.Context, owner string) []entity.Job
}

type yieldGatekeeper interface {
	Position(ctx context.Context, asset string) (entity.YieldPosition, gatekeeper.Eligibility, error)
	Deposit(ctx context.Context, asset, amount string) (entity.WriteRequest, error)
	Withdraw(ctx context.Context, asset, shares string) (entity.WriteRequest, error)
	Request() entity.WriteRequest
}

type intentBuilder interface {
	Build(ctx context.Context, draft entity.IntentDraft) (entity.IntentPlan, error)
	Submit(ctx context.Context, plan entity.IntentPlan) (string, error)
}

type viewSubscriber interface {
	Subscribe() chan entity.View
	Unsubscribe(ch chan entity.View)
}

// Server exposes the unified treasury view and write actions over HTTP,
// plus an SSE stream of view updates.
type Server struct {
	Addr       string
	Controller viewController
	Gatekeeper yieldGatekeeper
	Builder    intentBuilder
	Views      viewSubscriber
}

// NewServer creates a new web server instance.
func NewServer(addr string, ctrl viewController, gk yieldGatekeeper, builder intentBuilder, views viewSubscriber) *Server {
	return &Server{Addr: addr, Controller: ctrl, Gatekeeper: gk, Builder: builder, Views: views}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /treasury/view", s.handleView)
	mux.HandleFunc("GET /treasury/history", s.handleHistory)
	mux.HandleFunc("GET /treasury/stream", s.handleViewStream)
	mux.HandleFunc("GET /treasury/jobs", s.handleJobs)
	mux.HandleFunc("GET /treasury/yield/position", s.handlePosition)
	mux.HandleFunc("POST /treasury/yield/deposit", s.handleDeposit)
	mux.HandleFunc("POST /treasury/yield/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /payments/intents", s.handleCreateIntent)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleView returns the unified view. A range parameter triggers a fresh
// reconciliation attempt, so range changes always re-race the primary
// source.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	rangeParam := entity.Range(r.URL.Query().Get("range"))
	if rangeParam == "" {
		writeJSON(w, http.StatusOK, s.Controller.View())
		return
	}
	if !rangeParam.Valid() {
		http.Error(w, "invalid range, want one of 7d|30d|90d|1y|all", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.Controller.Refresh(r.Context(), rangeParam))
}

// handleHistory re-runs reconciliation for the requested range and returns
// only the timeseries, so a range switch in the history panel always hits
// fresh data.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rangeParam := entity.Range(r.URL.Query().Get("range"))
	if rangeParam == "" {
		rangeParam = entity.Range30d
	}
	if !rangeParam.Valid() {
		http.Error(w, "invalid range, want one of 7d|30d|90d|1y|all", http.StatusBadRequest)
		return
	}

	view := s.Controller.Refresh(r.Context(), rangeParam)
	history := view.History
	if history == nil {
		history = []entity.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"range":   rangeParam,
		"mode":    view.Mode,
		"history": history,
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	jobs := s.Controller.RefreshJobs(r.Context(), owner)
	if jobs == nil {
		jobs = []entity.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		http.Error(w, "asset parameter required", http.StatusBadRequest)
		return
	}

	pos, elig, err := s.Gatekeeper.Position(r.Context(), asset)
	if err != nil {
		http.Error(w, "position unavailable", http.StatusBadGateway)
		log.Printf("yield position read: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position":    pos,
		"eligibility": elig,
		"canWrite":    elig.CanWrite(),
		"reason":      elig.Reason(),
		"request":     s.Gatekeeper.Request(),
	})
}

type writeActionRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Shares string `json:"shares"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var body writeActionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req, err := s.Gatekeeper.Deposit(r.Context(), body.Asset, body.Amount)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var body writeActionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req, err := s.Gatekeeper.Withdraw(r.Context(), body.Asset, body.Shares)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

type createIntentRequest struct {
	FundingAsset string                  `json:"fundingAsset"`
	PayoutAsset  string                  `json:"payoutAsset"`
	Amount       string                  `json:"amount"`
	DeadlineDays string                  `json:"deadlineDays"`
	YieldEnabled bool                    `json:"yieldEnabled"`
	Recipients   []entity.SplitRecipient `json:"recipients"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var body createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	plan, err := s.Builder.Build(r.Context(), entity.IntentDraft{
		FundingAsset: body.FundingAsset,
		PayoutAsset:  body.PayoutAsset,
		Amount:       body.Amount,
		DeadlineDays: body.DeadlineDays,
		YieldEnabled: body.YieldEnabled,
		Recipients:   body.Recipients,
	})
	if err != nil {
		if errors.Is(err, intent.ErrAssetNotEligible) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	txHash, err := s.Builder.Submit(r.Context(), plan)
	if err != nil {
		http.Error(w, "intent submission failed", http.StatusBadGateway)
		log.Printf("intent submission: %v", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"txHash": txHash, "call": plan.Call})
}

// handleViewStream pushes unified view updates over SSE.
func (s *Server) handleViewStream(w http.ResponseWriter, r *http.Request) {
	if s.Views == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "view stream not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ch := s.Views.Subscribe()
	defer s.Views.Unsubscribe(ch)

	send := func(v entity.View) {
		payload, err := json.Marshal(v)
		if err != nil {
			log.Printf("view stream marshal: %v", err)
			return
		}
		fmt.Fprintf(w, "event: view\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	// current state first so late subscribers are not blank
	send(s.Controller.View())

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case v, open := <-ch:
			if !open {
				return
			}
			send(v)
		}
	}
}

func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gatekeeper.ErrIneligible):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, gatekeeper.ErrZeroAmount):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "write submission failed", http.StatusBadGateway)
		log.Printf("yield write: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
