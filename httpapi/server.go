// Package httpapi exposes the Engine over HTTP: a synchronous generate
// endpoint plus health and metrics probes, following the gin-gonic wiring
// style of the retrieved pack's gateway routers.
package httpapi

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pagedinfer/pagedinfer/engine"
	"github.com/pagedinfer/pagedinfer/external"
)

// Server wires an Engine to a gin router. Engine and Scheduler assume a
// single-threaded caller, so every generate request serializes through genMu
// before touching the engine — gin otherwise happily runs handlers on concurrent
// goroutines.
type Server struct {
	engine    *engine.Engine
	tokenizer external.Tokenizer
	router    *gin.Engine

	genMu sync.Mutex
}

// NewServer builds the router and registers routes. The tokenizer serves
// string prompts submitted over /v1/generate.
func NewServer(eng *engine.Engine, tokenizer external.Tokenizer) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: eng, tokenizer: tokenizer}

	r := gin.New()
	r.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/healthz"), gin.Recovery())
	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", s.handleMetrics())
	r.POST("/v1/generate", s.handleGenerate)
	s.router = r
	return s
}

// Run starts the HTTP server, blocking until it exits or errors.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (s *Server) handleMetrics() gin.HandlerFunc {
	h := promhttp.HandlerFor(s.engine.Metrics().Registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

type generateRequest struct {
	Prompts     []string `json:"prompts" binding:"required"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	IgnoreEOS   bool     `json:"ignore_eos"`
}

type generateResponse struct {
	Completions [][]int `json:"completions"`
}

// handleGenerate admits every prompt in the request body and blocks until
// all of them finish, matching the synchronous batch façade of
// engine.Engine.Generate. Streaming/async responses are a non-goal.
func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sampling := engine.DefaultSamplingParams()
	if req.Temperature != 0 {
		sampling.Temperature = req.Temperature
	}
	if req.MaxTokens != 0 {
		sampling.MaxTokens = req.MaxTokens
	}
	sampling.IgnoreEOS = req.IgnoreEOS

	prompts := make([]any, len(req.Prompts))
	for i, p := range req.Prompts {
		prompts[i] = p
	}

	s.genMu.Lock()
	outputs, err := s.engine.Generate(prompts, sampling, s.tokenizer, nil)
	s.genMu.Unlock()
	if err != nil {
		logrus.Errorf("generate: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, generateResponse{Completions: outputs})
}
