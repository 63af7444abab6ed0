package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-hydra/internal/application"
	"github.com/ahrav/go-hydra/internal/domain"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports the sync status snapshot, 503 until every registered
// dependency has loaded.
func (s *Server) handleReady(c *gin.Context) {
	if s.deps.Status == nil {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	snap := s.deps.Status.Snapshot()
	status := http.StatusOK
	if !snap.Ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, snap)
}

func (s *Server) handleComputeScores(c *gin.Context) {
	var in application.ComputeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := s.deps.Scorer.Validate(in); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Scorer.ComputeScores(in))
}

func (s *Server) handleStandings(c *gin.Context) {
	var weight *int
	if raw := c.Query("user_weight"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "user_weight must be an integer")
			return
		}
		weight = &w
	}

	ranked, err := s.deps.Leaderboard.Standings(c.Request.Context(), c.Param("id"), domain.Scheme(c.Query("scheme")), weight)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ranked)
}

func (s *Server) handleRecordResult(c *gin.Context) {
	var r domain.ContestResult
	if err := c.ShouldBindJSON(&r); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	r.ContestID = c.Param("id")
	if err := s.deps.Leaderboard.RecordScore(c.Request.Context(), &r); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) handleDiscrepancy(c *gin.Context) {
	var in application.DiscrepancyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	rec, err := s.deps.Discrepancy.Check(c.Request.Context(), in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if rec == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// handleVerdict streams phase events as Server-Sent Events. Failures before
// the first event are plain JSON errors; later ones end the stream with an
// "error" event. A successful run ends with a "verdict" event carrying the
// whole run.
func (s *Server) handleVerdict(c *gin.Context) {
	ctx, cancel := application.WithVerdictTimeout(c.Request.Context())
	defer cancel()

	streaming := false
	start := func() {
		if streaming {
			return
		}
		streaming = true
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}
	sink := func(e domain.PhaseEvent) {
		start()
		c.SSEvent(e.Type, e)
		c.Writer.Flush()
	}

	run, err := s.deps.Verdicts.RunVerdict(ctx, c.Param("id"), c.Query("arbiter"), sink)
	if err != nil {
		if !streaming {
			abortWithError(c, err)
			return
		}
		_ = c.Error(err)
		c.SSEvent("error", errorBody{Error: err.Error()})
		c.Writer.Flush()
		return
	}
	start()
	c.SSEvent("verdict", run)
	c.Writer.Flush()
}

type decisionRequest struct {
	Decision           string   `json:"decision" binding:"required"`
	RetestCompetencies []string `json:"retest_competencies"`
}

func (s *Server) handleDecision(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		abortWithError(c, err)
		return
	}

	session, err := s.deps.Decisions.ApplyDecision(c.Request.Context(), c.Param("id"), decision, req.RetestCompetencies)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
