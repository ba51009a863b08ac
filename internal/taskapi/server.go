// Package taskapi is the thin HTTP facade spec.md places out of scope: just
// enough CRUD and stream wiring to create a task, pull its record and event
// backlog, and open a Push-Stream Session. Grounded on the teacher's
// cmd/tarsy/main.go gin setup and pkg/api/server.go's Server-struct-holds-
// dependencies shape (adapted from echo to gin, the stack this repo settled
// on — see DESIGN.md).
package taskapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/codeready-toolchain/taskengine/internal/registry"
	"github.com/codeready-toolchain/taskengine/internal/store"
	"github.com/codeready-toolchain/taskengine/internal/stream"
)

// Server holds the facade's dependencies. Constructed once in cmd/taskengine
// and wired into a gin.Engine via NewRouter.
type Server struct {
	store store.DurableStore
	reg   *registry.Registry
}

// upgrader allows all origins, matching the teacher's pkg/api/websocket.go
// PoC-stage CheckOrigin; a production deployment would allowlist origins
// from configuration before exposing this outside a trusted network.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer builds a Server over st and reg.
func NewServer(st store.DurableStore, reg *registry.Registry) *Server {
	return &Server{store: st, reg: reg}
}

// NewRouter builds the gin.Engine exposing POST /tasks, GET /tasks/:id, and
// GET /stream/:id, plus a /health endpoint mirroring cmd/tarsy/main.go.
func NewRouter(s *Server) *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.POST("/tasks", s.createTaskHandler)
	router.GET("/tasks/:id", s.getTaskHandler)
	router.GET("/stream/:id", s.streamHandler)

	return router
}

// streamHandler upgrades the HTTP connection and runs a Push-Stream Session
// to completion. Mirrors the teacher's pkg/api/handler_ws.go delegation
// shape: the handler's only job is the upgrade; the session owns the loop.
func (s *Server) streamHandler(c *gin.Context) {
	taskID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	sess := stream.New(stream.NewGorillaConn(conn), taskID, s.store, s.reg)

	ctx, cancel := context.WithTimeout(context.Background(), 24*time.Hour)
	defer cancel()
	sess.Run(ctx)
}
