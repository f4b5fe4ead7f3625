// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/execution"
	"solana-entry-gate/internal/feed"
	"solana-entry-gate/internal/observability"
	"solana-entry-gate/internal/orchestrator"
	"solana-entry-gate/internal/storage"
)

// Service is the orchestrator surface served by the API.
type Service interface {
	Admit(ctx context.Context, c domain.Candidate) domain.AggregateDecision
	Process(ctx context.Context, c domain.Candidate) orchestrator.ProcessResult
	ValidatePrerequisites(ctx context.Context, cfg domain.ExecutionConfig) error
	ExecutionConfig() domain.ExecutionConfig
	ExecuteImmediate(ctx context.Context, c domain.Candidate, cfg domain.ExecutionConfig) (*orchestrator.ExecutionOutcome, error)
	CancelMonitor(mint string) bool
	CloseManual(ctx context.Context, mint string) (*execution.Result, error)
	Status() orchestrator.Status
	Positions(ctx context.Context, status domain.PositionStatus) ([]*domain.Position, error)
}

// Server serves the HTTP API.
type Server struct {
	svc    Service
	logger *logrus.Entry
}

// New creates a Server.
func New(svc Service, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{svc: svc, logger: logger.WithField("component", "api")}
}

// Router builds the gin engine.
func (s *Server) Router() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/admit", s.handleAdmit)
	v1.POST("/queue", s.handleEnqueue)
	v1.POST("/execute", s.handleExecute)
	v1.GET("/status", s.handleStatus)
	v1.GET("/positions", s.handlePositions)
	v1.POST("/positions/:mint/close", s.handleClose)
	v1.DELETE("/monitors/:mint", s.handleCancelMonitor)

	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAdmit(c *gin.Context) {
	var req feed.CandidateMessage
	cand, ok := bindCandidate(c, &req)
	if !ok {
		return
	}
	d := s.svc.Admit(c.Request.Context(), cand)
	c.JSON(http.StatusOK, newDecisionResponse(d))
}

type enqueueRequest struct {
	Candidates []feed.CandidateMessage `json:"candidates"`
}

func (s *Server) handleEnqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if len(req.Candidates) == 0 {
		writeError(c, http.StatusBadRequest, errors.New("no candidates"))
		return
	}
	cands := make([]domain.Candidate, 0, len(req.Candidates))
	for i := range req.Candidates {
		cand, err := req.Candidates[i].ToCandidate()
		if err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		cands = append(cands, cand)
	}
	if err := s.svc.ValidatePrerequisites(c.Request.Context(), s.svc.ExecutionConfig()); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	// every candidate passes the risk gate and observation before queueing
	results := make([]queueResult, 0, len(cands))
	accepted := 0
	for _, cand := range cands {
		r := s.svc.Process(c.Request.Context(), cand)
		if r.Enqueued {
			accepted++
		}
		results = append(results, newQueueResult(r))
	}
	c.JSON(http.StatusAccepted, gin.H{
		"accepted":     accepted,
		"queue_length": s.svc.Status().QueueLength,
		"results":      results,
	})
}

type executeRequest struct {
	Candidate           feed.CandidateMessage `json:"candidate"`
	BuyAmountSOL        string                `json:"buy_amount_sol,omitempty"`
	SlippageBps         int                   `json:"slippage_bps,omitempty"`
	PriorityFeeLamports uint64                `json:"priority_fee_lamports,omitempty"`
	TakeProfitPct       float64               `json:"take_profit_pct,omitempty"`
	StopLossPct         float64               `json:"stop_loss_pct,omitempty"`
}

func (s *Server) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	cand, err := req.Candidate.ToCandidate()
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	cfg := s.svc.ExecutionConfig()
	if req.BuyAmountSOL != "" {
		amt, err := decimal.NewFromString(req.BuyAmountSOL)
		if err != nil || !amt.IsPositive() {
			writeError(c, http.StatusBadRequest, errors.New("buy_amount_sol must be a positive decimal"))
			return
		}
		cfg.BuyAmountSOL = amt
	}
	if req.SlippageBps > 0 {
		cfg.SlippageBps = req.SlippageBps
	}
	if req.PriorityFeeLamports > 0 {
		cfg.PriorityFeeLamports = req.PriorityFeeLamports
	}
	if req.TakeProfitPct > 0 {
		cfg.TakeProfitPct = req.TakeProfitPct
	}
	if req.StopLossPct > 0 {
		cfg.StopLossPct = req.StopLossPct
	}

	out, err := s.svc.ExecuteImmediate(c.Request.Context(), cand, cfg)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	status := http.StatusOK
	if !out.Succeeded() {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, newExecutionResponse(out))
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Status())
}

func (s *Server) handlePositions(c *gin.Context) {
	status := domain.PositionStatus(c.Query("status"))
	switch status {
	case "", domain.PositionOpen, domain.PositionClosed, domain.PositionPending:
	default:
		writeError(c, http.StatusBadRequest, errors.New("unknown status "+string(status)))
		return
	}
	ps, err := s.svc.Positions(c.Request.Context(), status)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	out := make([]positionResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, newPositionResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) handleClose(c *gin.Context) {
	mint := c.Param("mint")
	res, err := s.svc.CloseManual(c.Request.Context(), mint)
	if err != nil {
		if res == nil {
			writeError(c, statusFor(err), err)
			return
		}
		c.JSON(http.StatusUnprocessableEntity, newTradeResponse(res))
		return
	}
	c.JSON(http.StatusOK, newTradeResponse(res))
}

func (s *Server) handleCancelMonitor(c *gin.Context) {
	mint := c.Param("mint")
	if !s.svc.CancelMonitor(mint) {
		writeError(c, http.StatusNotFound, errors.New("no active monitor for "+mint))
		return
	}
	c.Status(http.StatusNoContent)
}

func bindCandidate(c *gin.Context, req *feed.CandidateMessage) (domain.Candidate, bool) {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return domain.Candidate{}, false
	}
	cand, err := req.ToCandidate()
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return domain.Candidate{}, false
	}
	return cand, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPrerequisite):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrAlreadyProcessed), errors.Is(err, domain.ErrExitInProgress),
		errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
