// Package server exposes the operator session over HTTP for the dashboard.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"PatternSentinel/internal/backend"
	"PatternSentinel/internal/config"
	"PatternSentinel/internal/jobpoll"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/recorder"
	"PatternSentinel/internal/scene"
	"PatternSentinel/internal/session"
	"PatternSentinel/internal/strategy"
)

var log = logrus.WithField("component", "server")

// Session is the part of the operator session served over HTTP.
type Session interface {
	State() session.State
	Picks(filter string) []model.ScanPick
	StartScan(ctx context.Context, force bool) error
	CheckSymbol(ctx context.Context, symbol string, lookback int) (*model.AnalysisResult, error)
	Recheck(ctx context.Context, symbol string, interval model.Interval, lookback int) (*model.AnalysisResult, error)
	SetFilter(filter string) (strategy.Filter, error)
	SetQuoteSymbols(ctx context.Context, symbols []string) error
	QuoteSymbols() []string
}

// Display is the chart view the resize route talks to.
type Display interface {
	RequestResize(width int) error
}

// FrameSource holds the latest rendered chart.
type FrameSource interface {
	Bytes() ([]byte, bool)
}

// Options wires a server. Recorder, Frame and Display are optional.
type Options struct {
	Session  Session
	Recorder recorder.Recorder
	Frame    FrameSource
	Display  Display
}

type Server struct {
	opts   Options
	engine *gin.Engine
}

func New(opts Options) *Server {
	if opts.Recorder == nil {
		opts.Recorder = recorder.NewNoopRecorder()
	}
	s := &Server{opts: opts}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errc := make(chan error, 1)
	go func() {
		log.Infof("http server listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("http server stopped")
	return nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		AllowMethods:  []string{"GET", "POST", "PUT"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/api/state", s.getState)
	r.GET("/api/picks", s.getPicks)
	r.PUT("/api/picks/filter", s.putFilter)
	r.POST("/api/scan", s.postScan)
	r.POST("/api/check", s.postCheck)
	r.GET("/api/quotes", s.getQuotes)
	r.PUT("/api/quotes/symbols", s.putQuoteSymbols)
	r.GET("/api/chart.png", s.getChart)
	r.POST("/api/chart/width", s.postChartWidth)
	r.GET("/api/history", s.getHistory)
	return r
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Session.State())
}

func (s *Server) getPicks(c *gin.Context) {
	filter := c.Query("filter")
	job := s.opts.Session.State().Job
	picks := s.opts.Session.Picks(filter)
	if picks == nil {
		picks = []model.ScanPick{}
	}
	c.JSON(http.StatusOK, gin.H{"status": job.State, "picks": picks})
}

func (s *Server) putFilter(c *gin.Context) {
	payload := struct {
		Filter string `json:"filter"`
	}{}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing arguments"})
		return
	}
	f, err := s.opts.Session.SetFilter(payload.Filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"filter": f})
}

func (s *Server) postScan(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	err := s.opts.Session.StartScan(c.Request.Context(), force)
	switch {
	case errors.Is(err, jobpoll.ErrSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": jobpoll.StartFailedText})
	default:
		c.JSON(http.StatusAccepted, s.opts.Session.State().Job)
	}
}

func (s *Server) postCheck(c *gin.Context) {
	symbol := c.Query("symbol")
	interval := model.Interval(c.Query("interval"))
	lookback := 0
	if v := c.Query("lookback"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lookback must be a number"})
			return
		}
		lookback = n
	}

	var (
		res *model.AnalysisResult
		err error
	)
	if interval == "" {
		res, err = s.opts.Session.CheckSymbol(c.Request.Context(), symbol, lookback)
	} else {
		res, err = s.opts.Session.Recheck(c.Request.Context(), symbol, interval, lookback)
	}

	var remote *backend.RemoteError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, session.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrStaleCheck):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &remote):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": s.opts.Session.State().Banner})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": s.opts.Session.State().Banner})
	}
}

func (s *Server) getQuotes(c *gin.Context) {
	quotes := s.opts.Session.State().Quotes
	if quotes == nil {
		c.JSON(http.StatusOK, gin.H{"symbols": s.opts.Session.QuoteSymbols(), "quotes": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, quotes)
}

func (s *Server) putQuoteSymbols(c *gin.Context) {
	payload := struct {
		Symbols []string `json:"symbols"`
		Text    string   `json:"text"` // comma separated alternative
	}{}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing arguments"})
		return
	}
	symbols := payload.Symbols
	if len(symbols) == 0 {
		symbols = config.SplitSymbols(payload.Text)
	}
	if err := s.opts.Session.SetQuoteSymbols(c.Request.Context(), symbols); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": s.opts.Session.QuoteSymbols()})
}

func (s *Server) getChart(c *gin.Context) {
	if s.opts.Frame == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no chart"})
		return
	}
	png, ok := s.opts.Frame.Bytes()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no chart"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) postChartWidth(c *gin.Context) {
	width, err := strconv.Atoi(c.Query("width"))
	if err != nil || width <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "width must be a positive number"})
		return
	}
	if s.opts.Display == nil {
		c.JSON(http.StatusConflict, gin.H{"error": scene.ErrNotListening.Error()})
		return
	}
	switch err := s.opts.Display.RequestResize(width); {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"width": width})
	case errors.Is(err, scene.ErrResizePending):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	}
}

func (s *Server) getHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := s.opts.Recorder.RecentChecks(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []recorder.SymbolCheck{}
	}
	c.JSON(http.StatusOK, gin.H{"checks": rows})
}
