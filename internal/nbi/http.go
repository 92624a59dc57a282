package nbi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signalsfoundry/cellular-simulator/internal/logging"
)

// NewHTTPHandler builds the admin HTTP surface: health, Prometheus metrics
// and read-only views of the coordinator. metrics may be nil.
func NewHTTPHandler(svc *CellularService, metrics http.Handler, log logging.Logger) *gin.Engine {
	log = logging.OrNoop(log)
	started := time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(accessLog(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(started).String(),
		})
	})

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Status())
	})

	r.GET("/towers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"towers": svc.Status().Towers})
	})

	r.GET("/towers/:id", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tower id must be an integer"})
			return
		}
		detail, err := svc.TowerDetail(id)
		if err != nil {
			c.JSON(HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, detail)
	})

	return r
}

func accessLog(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.Int("status", status),
			logging.String("duration", time.Since(start).String()),
			logging.String("client_ip", c.ClientIP()),
		}
		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.Error(ctx, "http_request", fields...)
		case status >= 400:
			log.Warn(ctx, "http_request", fields...)
		default:
			log.Debug(ctx, "http_request", fields...)
		}
	}
}
