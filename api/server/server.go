// Package server exposes a Postprocessor over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nvr-ai/go-nms/api"
	"github.com/nvr-ai/go-nms/metrics"
	"github.com/nvr-ai/go-nms/models"
	"github.com/nvr-ai/go-nms/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server routes:
//
//	GET  /api/ping  liveness
//	POST /api/nms   run multiclass NMS on one image
//	GET  /metrics   Prometheus exposition
type Server struct {
	pp      *postprocess.Postprocessor
	metrics *metrics.Manager
	log     *zap.Logger
	engine  *gin.Engine
	labels  models.LabelSet
}

// New builds the router. m may be nil, in which case /metrics is not served.
func New(pp *postprocess.Postprocessor, m *metrics.Manager, log *zap.Logger) *Server {
	if log == nil {
		log = zap.L()
	}
	s := &Server{
		pp:      pp,
		metrics: m,
		log:     log.Named("server"),
		engine:  gin.New(),
	}

	s.engine.Use(gin.Recovery(), s.observe)
	s.engine.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	s.engine.POST("/api/nms", s.handleNMS)
	if m != nil {
		s.engine.GET("/metrics", gin.WrapH(m.Handler()))
	}
	return s
}

// WithLabels names the labels of every response from set.
func (s *Server) WithLabels(set models.LabelSet) *Server {
	s.labels = set
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	elapsed := time.Since(start)
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = "unmatched"
	}
	if s.metrics != nil {
		s.metrics.RecordHTTPRequest(endpoint, c.Request.Method, c.Writer.Status(), elapsed)
	}
	s.log.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", endpoint),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("elapsed", elapsed))
}

func (s *Server) handleNMS(c *gin.Context) {
	id := uuid.NewString()

	var req api.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{ID: id, Error: err.Error()})
		return
	}

	ppReq, err := req.Postprocess()
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{ID: id, Error: err.Error(), Kind: postprocess.ErrorKind(err)})
		return
	}

	dets, err := s.pp.Run(c.Request.Context(), ppReq)
	if err != nil {
		kind := postprocess.ErrorKind(err)
		status := http.StatusBadRequest
		if kind == "other" {
			status = http.StatusInternalServerError
		}
		s.log.Warn("nms failed", zap.String("id", id), zap.Error(err))
		c.JSON(status, api.ErrorResponse{ID: id, Error: err.Error(), Kind: kind})
		return
	}

	resp := api.NewResponse(id, dets)
	resp.NameLabels(s.labels)
	c.JSON(http.StatusOK, resp)
}
