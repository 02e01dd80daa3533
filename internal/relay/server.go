package relay

import (
	"net/http"

	"stage-manager/internal/config"
	"stage-manager/internal/persistence"
	"stage-manager/internal/stage"

	"github.com/gin-gonic/gin"
)

// Server is the host relay: a best-effort websocket fan-out per session plus
// an HTTP view of the scoped object store.
type Server struct {
	hub      *hub
	store    persistence.Store
	registry *stage.Registry
	cfg      config.Config
}

func New(store persistence.Store, cfg config.Config) *Server {
	if store == nil {
		store = persistence.NewMemoryStore()
	}
	return &Server{
		hub:      newHub(cfg.BroadcastWorkers),
		store:    store,
		registry: stage.DefaultRegistry(),
		cfg:      cfg,
	}
}

func (s *Server) Handler() http.Handler {
	registerValidators()
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", s.handleHealth)
	router.GET("/ws/sessions/:session", s.handleWebsocket)
	api := router.Group("/api")
	api.GET("/scopes/:scope/objects", s.handleGetObjects)
	api.PUT("/scopes/:scope/objects", s.handlePutObjects)
	api.GET("/sessions/:session/presence", s.handlePresence)
	return router
}
