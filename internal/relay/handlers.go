package relay

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"stage-manager/internal/persistence"
	"stage-manager/internal/stage"

	"github.com/gin-gonic/gin"
)

type scopeURI struct {
	Scope string `uri:"scope" binding:"required,stagescope"`
}

type ownerQuery struct {
	Owner string `form:"owner" binding:"omitempty,ident"`
}

type putObjectsRequest struct {
	Objects []stage.Serialized `json:"objects" binding:"required,max=2000"`
}

var putObjectsMessages = bindMessages{
	"Objects": {
		"required": "objects is required",
		"max":      fmt.Sprintf("at most %d objects per set", maxObjectsPerSet),
	},
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePresence(c *gin.Context) {
	var uri sessionURI
	if !bindURI(c, &uri) {
		return
	}
	if _, err := s.authenticate(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": s.hub.Members(uri.Session)})
}

func (s *Server) handleGetObjects(c *gin.Context) {
	key, claims, ok := s.resolveKey(c)
	if !ok {
		return
	}
	if key.Scope == stage.ScopeUser && !claims.Elevated && key.Owner != claims.Subject {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot read another user's objects"})
		return
	}
	objects, err := s.store.Get(c.Request.Context(), key.Scope, key.Owner)
	if err != nil {
		log.Printf("objects read failed key=%s error=%v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read objects"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"objects": objects})
}

func (s *Server) handlePutObjects(c *gin.Context) {
	key, claims, ok := s.resolveKey(c)
	if !ok {
		return
	}
	allowed := claims.Elevated || (key.Scope == stage.ScopeUser && key.Owner == claims.Subject)
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to write this scope"})
		return
	}
	var req putObjectsRequest
	if !bindJSON(c, &req, putObjectsMessages, "invalid objects") {
		return
	}
	for _, data := range req.Objects {
		if err := s.validateObject(key, data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := s.store.Set(c.Request.Context(), key.Scope, key.Owner, req.Objects); err != nil {
		log.Printf("objects write failed key=%s error=%v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write objects"})
		return
	}
	log.Printf("objects written key=%s count=%d user=%s", key, len(req.Objects), claims.Subject)
	c.JSON(http.StatusOK, gin.H{"count": len(req.Objects)})
}

func (s *Server) resolveKey(c *gin.Context) (persistence.Key, *Claims, bool) {
	var uri scopeURI
	if !bindURI(c, &uri) {
		return persistence.Key{}, nil, false
	}
	var query ownerQuery
	if !bindQuery(c, &query) {
		return persistence.Key{}, nil, false
	}
	claims, err := s.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
		return persistence.Key{}, nil, false
	}
	key := persistence.Key{Scope: stage.Scope(uri.Scope), Owner: query.Owner}
	if err := key.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return persistence.Key{}, nil, false
	}
	return key, claims, true
}

func (s *Server) validateObject(key persistence.Key, data stage.Serialized) error {
	if data.Scope != key.Scope {
		return fmt.Errorf("object %s has scope %q, want %q", data.ID, data.Scope, key.Scope)
	}
	if _, err := s.registry.Decode(data); err != nil {
		if errors.Is(err, stage.ErrValidation) {
			return fmt.Errorf("object %s: %v", data.ID, err)
		}
		return err
	}
	return nil
}
