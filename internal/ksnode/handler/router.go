package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// NewRouter wires the node's HTTP surface. The key-share endpoints sit behind
// the shared bearer token; commit-reveal is open because it is the step that
// establishes trust in the first place.
func NewRouter(ks *KeyShareHandler, cr *CommitRevealHandler, authToken string, production bool) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, types.OkResp(gin.H{"status": "ok"}))
	})

	keyshare := r.Group("/keyshare/v2", requireBearer(authToken))
	{
		keyshare.POST("/", ks.Get)
		keyshare.POST("/register", ks.Register)
		keyshare.POST("/register/ed25519", ks.RegisterEd25519)
		keyshare.POST("/reshare", ks.Reshare)
		keyshare.POST("/reshare/register", ks.ReshareRegister)
		keyshare.POST("/check", ks.Check)
	}

	commit := r.Group("/commit-reveal/v2")
	{
		commit.POST("/commit", cr.Commit)
		commit.POST("/reveal", cr.Reveal)
	}

	return r
}

func requireBearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" ||
			subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.ErrResp(types.E(types.ErrUnauthorized, "missing or invalid bearer token")))
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
