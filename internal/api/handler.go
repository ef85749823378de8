package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"optioncore/internal/events"
	"optioncore/internal/monitor"
	"optioncore/internal/strategy"
	"optioncore/pkg/license"
)

// Server is the operational HTTP facade (C25): a thin read/override layer
// over C24's monitor tables and the strategy engine, excluded from the
// trading-safety invariants that bind C1-C16. Grounded on the teacher's
// internal/api, narrowed to the read-only + single-override surface
// SPEC_FULL §4.13 specifies.
type Server struct {
	Router  *gin.Engine
	Repo    *monitor.Repository
	Metrics *monitor.Metrics
	PushBus *events.Bus
	Engine  *strategy.Engine

	JWTSecret string
	License   *license.Manager

	// InstanceID must match the instanceID the worker's SnapshotWriter was
	// constructed with (main.go uses "primary"): there is one worker
	// process per database, so one facade instance always serves one
	// fixed instance id.
	InstanceID string
}

// NewServer builds the gin router and registers every route.
func NewServer(repo *monitor.Repository, metrics *monitor.Metrics, pushBus *events.Bus, engine *strategy.Engine, instanceID, jwtSecret string, licenseMgr *license.Manager) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(10 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:     r,
		Repo:       repo,
		Metrics:    metrics,
		PushBus:    pushBus,
		Engine:     engine,
		JWTSecret:  jwtSecret,
		License:    licenseMgr,
		InstanceID: instanceID,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", s.prometheusHandler)

	protected := s.Router.Group("")
	protected.Use(LicenseMiddleware(s.License))
	protected.Use(AuthMiddleware(s.JWTSecret))
	{
		protected.GET("/monitor/snapshot/:variant", s.getMonitorSnapshot)
		protected.GET("/monitor/events/:variant", s.getMonitorEvents)
		protected.POST("/positions/:vt_symbol/flatten", s.flattenPosition)
		protected.GET("/ws/monitor", s.monitorWebsocket)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) prometheusHandler(c *gin.Context) {
	s.Metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Start runs the facade; blocks until the listener errors or the process
// is signaled elsewhere and the caller cancels via a wrapping server.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
