package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chainapsis/oko-tss/pkg/auth"
	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/oauth"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// RouterDeps carries everything the orchestrator router wires together.
type RouterDeps struct {
	Users      *UserHandler
	TSS        *TSSHandler
	Nodes      *NodeHandler
	Tokens     *auth.TokenService
	Verifier   oauth.Verifier
	AdminToken string
	Production bool
}

// NewRouter wires the orchestrator surface under /tss/v1/. Keygen and reshare
// authenticate with the third-party identity token; presign and abort require
// an orchestrator session token; node administration sits behind the admin
// bearer token.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, types.OkResp(gin.H{"status": "ok"}))
	})

	v1 := r.Group("/tss/v1")

	user := v1.Group("/user")
	{
		user.POST("/check", deps.Users.Check)
		user.POST("/signin", deps.Users.SignIn)
		user.POST("/signin_silently", deps.Users.SignInSilently)
		user.POST("/reshare", requireOAuth(deps.Verifier), deps.Users.Reshare)
	}

	v1.POST("/keygen", requireOAuth(deps.Verifier), deps.TSS.Keygen)
	v1.POST("/keygen_ed25519", requireOAuth(deps.Verifier), deps.TSS.KeygenEd25519)

	session := v1.Group("", requireSession(deps.Tokens))
	{
		session.POST("/presign_ed25519", deps.TSS.PresignEd25519)
		session.POST("/presign/step1", deps.TSS.PresignStep1)
		session.POST("/presign/step2", deps.TSS.PresignStep2)
		session.POST("/presign/step3", deps.TSS.PresignStep3)
		session.POST("/session/abort", deps.TSS.AbortSession)
	}

	node := v1.Group("/node", requireAdmin(deps.AdminToken))
	{
		node.POST("", deps.Nodes.Create)
		node.GET("", deps.Nodes.List)
		node.POST("/:id/activate", deps.Nodes.Activate)
		node.POST("/:id/deactivate", deps.Nodes.Deactivate)
		node.DELETE("/:id", deps.Nodes.Delete)
	}

	return r
}

func requireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided, ok := bearerToken(c)
		if !ok || token == "" ||
			subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.ErrResp(types.E(types.ErrUnauthorized, "missing or invalid admin token")))
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
