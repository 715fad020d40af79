// Package web serves a read-only admin API: engine counters, failover
// state, task and alert listings, system config. Bearer-token auth on
// everything except the liveness probe.
package web

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"CryptoSentinel/internal/exchange"
	"CryptoSentinel/internal/model"
	"CryptoSentinel/internal/monitor"
	"CryptoSentinel/internal/store"
)

// PriceProvider is the slice of the failover manager the API reads.
type PriceProvider interface {
	MultiPrice(ctx context.Context, symbols []string) map[string]*model.PriceQuote
	Status() exchange.ManagerStatus
}

// StatsSource reports the monitor engine's counters.
type StatsSource interface {
	Stats() monitor.Stats
}

type Config struct {
	ListenAddr string
	AdminToken string
}

type Server struct {
	cfg     Config
	store   *store.Store
	prices  PriceProvider
	engine  StatsSource
	log     zerolog.Logger
	srv     *http.Server
	started time.Time
}

func NewServer(cfg Config, st *store.Store, prices PriceProvider, engine StatsSource, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		store:   st,
		prices:  prices,
		engine:  engine,
		log:     log,
		started: time.Now(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api", s.auth())
	{
		api.GET("/stats", s.handleStats)
		api.GET("/prices", s.handlePrices)
		api.GET("/tasks", s.handleTasks)
		api.GET("/alerts", s.handleAlerts)
		api.GET("/system", s.handleSystem)
	}

	s.srv = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("admin api listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("admin api server failed")
		}
	}()
}

// Shutdown drains in-flight requests, waiting up to five seconds.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("admin api shutdown failed")
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || token != s.cfg.AdminToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	counts, err := s.store.TableCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"engine": s.engine.Stats(),
		"store":  counts,
		"prices": s.prices.Status(),
	})
}

type priceView struct {
	Price       float64   `json:"price"`
	Source      string    `json:"source"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

func (s *Server) handlePrices(c *gin.Context) {
	var symbols []string
	for _, tok := range strings.Split(c.Query("symbols"), ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			symbols = append(symbols, exchange.NormalizeSymbol(tok))
		}
	}
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols parameter is required"})
		return
	}

	quotes := s.prices.MultiPrice(c.Request.Context(), symbols)

	// Failed symbols come back as explicit nulls.
	out := make(map[string]*priceView, len(symbols))
	for _, sym := range symbols {
		if q := quotes[sym]; q != nil {
			out[sym] = &priceView{Price: q.Price, Source: q.Source, RetrievedAt: q.RetrievedAt}
		} else {
			out[sym] = nil
		}
	}
	c.JSON(http.StatusOK, out)
}

type taskView struct {
	ID              int64      `json:"task_id"`
	UserID          int64      `json:"user_id"`
	Symbol          string     `json:"symbol"`
	MarketType      string     `json:"market_type"`
	RuleType        string     `json:"rule_type"`
	Rule            string     `json:"rule"`
	Status          string     `json:"status"`
	CooldownSeconds int        `json:"cooldown_seconds"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (s *Server) handleTasks(c *gin.Context) {
	var userID int64
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be an integer"})
			return
		}
		userID = id
	}

	status := model.TaskStatus(strings.ToUpper(c.Query("status")))
	if status != "" && status != model.TaskActive && status != model.TaskPaused {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be ACTIVE or PAUSED"})
		return
	}

	tasks, err := s.store.ListTasks(userID, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		v := taskView{
			ID:              t.ID,
			UserID:          t.UserID,
			Symbol:          t.Symbol,
			MarketType:      t.MarketType,
			RuleType:        string(t.Rule.Kind()),
			Rule:            t.Rule.Describe(),
			Status:          string(t.Status),
			CooldownSeconds: t.CooldownSeconds,
			CreatedAt:       t.CreatedAt,
		}
		if !t.LastTriggeredAt.IsZero() {
			at := t.LastTriggeredAt
			v.LastTriggeredAt = &at
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(views), "tasks": views})
}

type alertView struct {
	ID           int64     `json:"alert_id"`
	TaskID       int64     `json:"task_id"`
	UserID       int64     `json:"user_id"`
	Symbol       string    `json:"symbol"`
	MarketType   string    `json:"market_type"`
	TriggerPrice float64   `json:"trigger_price"`
	TriggerValue float64   `json:"trigger_value"`
	Message      string    `json:"message"`
	TriggeredAt  time.Time `json:"triggered_at"`
	SentSuccess  bool      `json:"sent_success"`
}

func (s *Server) handleAlerts(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	alerts, err := s.store.RecentAlerts(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, alertView{
			ID:           a.ID,
			TaskID:       a.TaskID,
			UserID:       a.UserID,
			Symbol:       a.Symbol,
			MarketType:   a.MarketType,
			TriggerPrice: a.TriggerPrice,
			TriggerValue: a.TriggerValue,
			Message:      a.Message,
			TriggeredAt:  a.TriggeredAt,
			SentSuccess:  a.SentSuccess,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(views), "alerts": views})
}

func (s *Server) handleSystem(c *gin.Context) {
	entries, err := s.store.SystemEntries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"config":         entries,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
	})
}
