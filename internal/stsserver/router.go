package stsserver

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ruianderson/sts-proxy/internal/logx"
	"github.com/ruianderson/sts-proxy/internal/metrics"
	"github.com/ruianderson/sts-proxy/pkg/communicator"
	"github.com/ruianderson/sts-proxy/pkg/config"
	"github.com/ruianderson/sts-proxy/pkg/guides"
)

// routerDeps are the collaborators NewRouter wires together.
type routerDeps struct {
	cfg          *config.Config
	store        *guides.Store
	comm         *communicator.Communicator
	metrics      *metrics.Metrics
	log          *zap.Logger
	accessLogger *log.Logger
	accessColor  bool
	accessFormat *logx.AccessLogFormatter
}

func NewRouter(d routerDeps) *gin.Engine {
	if d.log == nil {
		d.log = zap.NewNop()
	}
	r := gin.New()
	r.Use(requestIDMiddleware())
	if d.cfg.Logging.AccessLog && d.accessFormat != nil {
		r.Use(requestLoggerWithColor(d.accessLogger, d.accessColor, d.accessFormat))
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "guides": d.store.Registry().Len()})
	})
	if d.cfg.Metrics.Enabled && d.metrics != nil {
		r.GET(d.cfg.Metrics.Path, gin.WrapH(d.metrics.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(authMiddleware(d.cfg.Auth.APIKey))
	v1.GET("/actions", listActionsHandler(d.store))
	v1.GET("/actions/:action", getGuideHandler(d.store))
	v1.POST("/actions/:action", runActionHandler(d.comm, d.log))

	return r
}
