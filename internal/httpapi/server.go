// Package httpapi exposes the worker's ambient diagnostic HTTP surface:
// /healthz for a process supervisor's liveness probe and /statusz for
// workerctl and human operators. Adapted from the teacher's APIServer
// (controller_go/api.go), trimmed from a full app-management REST API
// down to these two read-only routes — this worker takes no inbound
// commands, so CORS (which the teacher wires for browser clients hitting
// that API) is dropped rather than carried forward unused.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nebulaorch/worker/internal/engine"
)

// StatusSource is the live data the /statusz route reports, backed by the
// running Agent.
type StatusSource interface {
	Cached() *engine.DeviceGroupSnapshot
}

// Server is the ambient diagnostics HTTP server.
type Server struct {
	router *gin.Engine
	status StatusSource
	nodeID string
	startedAt time.Time
}

// New builds a Server. Routes are registered immediately so Run only
// needs to bind and listen.
func New(status StatusSource, nodeID string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{router: router, status: status, nodeID: nodeID, startedAt: time.Now()}
	router.GET("/healthz", s.healthz)
	router.GET("/statusz", s.statusz)
	return s
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"node_id":    s.nodeID,
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) statusz(c *gin.Context) {
	cached := s.status.Cached()
	if cached == nil {
		c.JSON(http.StatusOK, gin.H{
			"node_id": s.nodeID,
			"status":  "bootstrapping",
		})
		return
	}
	apps := make([]string, 0, len(cached.AppsList))
	apps = append(apps, cached.AppsList...)
	c.JSON(http.StatusOK, gin.H{
		"node_id":         s.nodeID,
		"status":          "reconciling",
		"device_group_id": cached.DeviceGroupID,
		"prune_id":        cached.PruneID,
		"apps":            apps,
	})
}

// Run binds addr and serves until the process exits or Run returns an
// error, matching the teacher's blocking APIServer.Run(addr).
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
