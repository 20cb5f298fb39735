package server

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/maverikod/code-analysis-db/pkg/journal"
	"github.com/maverikod/code-analysis-db/pkg/logging"
	"github.com/maverikod/code-analysis-db/pkg/ratelimit"
)

// AdminConfig addresses the optional operator-facing HTTP surface. It is
// disabled (Addr == "") unless dbdriverd is given --admin-addr or a config
// file with admin.enabled and admin.address set; it is a side-channel for monitoring, never part of the
// JSON-RPC/UDS wire contract.
type AdminConfig struct {
	Addr string
}

// AdminServer exposes GET /restful/health and GET /restful/stats over HTTP,
// modeled on the teacher's cmd/v2access REST gateway: a bare gin.Engine
// with recovery-to-stderr, CORS, and the same {retcode, message, payload}
// envelope every handler there returns.
type AdminServer struct {
	cfg     AdminConfig
	srv     *Server
	journal *journal.Journal
	log     *logging.Logger
	limiter *ratelimit.ClientLimiter
	http    *http.Server
}

// NewAdminServer wires the admin HTTP surface to an already-running Server.
// journal may be nil if the driver was started without one.
func NewAdminServer(cfg AdminConfig, srv *Server, j *journal.Journal, log *logging.Logger) *AdminServer {
	if log == nil {
		log = logging.Default()
	}
	return &AdminServer{
		cfg:     cfg,
		srv:     srv,
		journal: j,
		log:     log.With("component", "admin"),
		limiter: ratelimit.NewClientLimiter(50, time.Second),
	}
}

func (a *AdminServer) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = os.Stderr
	gin.DefaultErrorWriter = os.Stderr

	router := gin.New()
	router.Use(gin.RecoveryWithWriter(os.Stderr))
	router.Use(cors.Default())
	router.Use(a.rateLimitMiddleware())

	restful := router.Group("/restful")
	restful.GET("/health", a.handleHealth)
	restful.GET("/stats", a.handleStats)

	return router
}

func (a *AdminServer) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/restful/health" {
			c.Next()
			return
		}
		key := ratelimit.EndpointKey(path, c.ClientIP())
		if !a.limiter.Allow(key) {
			errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"retcode": code, "message": message, "payload": nil})
}

func successResponse(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, gin.H{"retcode": 0, "message": "success", "payload": payload})
}

func (a *AdminServer) handleHealth(c *gin.Context) {
	successResponse(c, gin.H{"status": "ok"})
}

func (a *AdminServer) handleStats(c *gin.Context) {
	stats := a.srv.Stats()

	payload := gin.H{
		"queue": gin.H{
			"depth":    stats.Queue.Depth,
			"enqueued": stats.Queue.Enqueued,
			"dequeued": stats.Queue.Dequeued,
			"expired":  stats.Queue.Expired,
			"rejected": stats.Queue.Rejected,
		},
		"worker_pool": gin.H{
			"size":         stats.PoolSize,
			"queued_tasks": stats.PoolQueued,
		},
	}

	if a.journal != nil {
		if fi, err := os.Stat(a.journal.Path()); err == nil {
			payload["journal"] = gin.H{"path": a.journal.Path(), "size_bytes": fi.Size()}
		}
	}

	successResponse(c, payload)
}

// Run starts the admin HTTP listener and blocks until it stops. It returns
// nil when Close triggers a clean shutdown.
func (a *AdminServer) Run() error {
	if a.cfg.Addr == "" {
		return nil
	}
	a.http = &http.Server{Addr: a.cfg.Addr, Handler: a.router()}
	a.log.Info("admin HTTP surface listening", "addr", a.cfg.Addr)
	err := a.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close stops the admin HTTP listener.
func (a *AdminServer) Close() error {
	if a.http == nil {
		return nil
	}
	return a.http.Close()
}
