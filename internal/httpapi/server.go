// Package httpapi exposes a read-only operational query surface: health,
// Prometheus metrics, recent signal decisions, and the live risk snapshot.
// It is explicitly not a dashboard or control plane — no endpoint mutates
// engine state. Routing follows the teacher-pack's gin server
// (leanlp-BTC-coinjoin's internal/api/routes.go): one Handler holding
// narrow collaborator interfaces, grouped routes, gin.H JSON responses.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sonarwatch/copytrade-engine/internal/panicguard"
	"github.com/sonarwatch/copytrade-engine/internal/risk"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// RecentSignals is the narrow collaborator serving the /signals/recent
// endpoint, satisfied by the signal pipeline's bounded in-memory ring.
type RecentSignals interface {
	Recent() []types.SignalRecord
}

// Handler wires the read-only endpoints to their collaborators.
type Handler struct {
	riskManager *risk.Manager
	signals     RecentSignals
	sentinel    *panicguard.Sentinel
}

// NewRouter builds the gin engine. riskManager and signals may be nil in
// tests exercising only /healthz.
func NewRouter(riskManager *risk.Manager, signals RecentSignals, sentinel *panicguard.Sentinel) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	h := &Handler{riskManager: riskManager, signals: signals, sentinel: sentinel}

	r.GET("/healthz", h.handleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/signals/recent", h.handleSignalsRecent)
		v1.GET("/risk/snapshot", h.handleRiskSnapshot)
	}

	return r
}

func (h *Handler) handleHealthz(c *gin.Context) {
	panicEngaged := h.sentinel != nil && h.sentinel.IsActive()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"panic_engaged": panicEngaged,
	})
}

func (h *Handler) handleSignalsRecent(c *gin.Context) {
	if h.signals == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal pipeline not wired"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": h.signals.Recent()})
}

func (h *Handler) handleRiskSnapshot(c *gin.Context) {
	if h.riskManager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk manager not wired"})
		return
	}
	c.JSON(http.StatusOK, h.riskManager.Snapshot())
}
