package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/slipvault/slipvault/internal/authorization"
	"github.com/slipvault/slipvault/internal/config"
	"github.com/slipvault/slipvault/internal/identity"
	identitydomain "github.com/slipvault/slipvault/internal/identity/domain"
	"github.com/slipvault/slipvault/internal/identity/session"
	"github.com/slipvault/slipvault/internal/migration"
	"github.com/slipvault/slipvault/internal/observability"
	"github.com/slipvault/slipvault/internal/slip"
	slipdomain "github.com/slipvault/slipvault/internal/slip/domain"
	"github.com/slipvault/slipvault/internal/vision"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	vision.Module,
	slip.Module,
	identity.Module,
	migration.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.GinMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	sessions    *session.Manager
	identitySvc identitydomain.Service
	slipSvc     slipdomain.Service
	analyzer    vision.Analyzer
	categories  *config.CategoriesHolder
	metrics     *observability.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Sessions    *session.Manager
	IdentitySvc identitydomain.Service
	SlipSvc     slipdomain.Service
	Analyzer    vision.Analyzer
	Categories  *config.CategoriesHolder
	Metrics     *observability.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("server"),
		sessions:    p.Sessions,
		identitySvc: p.IdentitySvc,
		slipSvc:     p.SlipSvc,
		analyzer:    p.Analyzer,
		categories:  p.Categories,
		metrics:     p.Metrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/auth/register", s.RegisterUser)
	v1.POST("/auth/login", s.Login)
	v1.POST("/auth/logout", s.Logout)

	authed := v1.Group("", s.RequireSession())
	authed.GET("/me", s.CurrentUser)
	authed.PUT("/me", s.UpdateProfile)
	authed.POST("/me/password", s.ResetPassword)

	authed.POST("/analyze", s.AnalyzeReceipt)

	authed.POST("/slips", s.CreateSlip)
	authed.GET("/slips", s.ListSlips)
	authed.GET("/slips/export.csv", s.ExportSlips)
	authed.POST("/slips/duplicate-check", s.CheckDuplicate)
	authed.GET("/slips/:id", s.GetSlip)
	authed.PUT("/slips/:id", s.UpdateSlip)
	authed.DELETE("/slips/:id", s.DeleteSlip)

	authed.POST("/company/invite", s.InviteUser)
	authed.POST("/company/leave", s.LeaveCompany)
	authed.POST("/company/remove", s.RemoveFromCompany)
}

// RequireSession resolves the session cookie to a user and stashes the
// actor on the gin context. Handlers pass the actor to services
// explicitly.
func (s *Server) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		user, err := s.identitySvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextUserKey, user)
		c.Next()
	}
}

const contextUserKey = "current_user"

func currentUser(c *gin.Context) (identitydomain.User, bool) {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return identitydomain.User{}, false
	}
	user, ok := value.(identitydomain.User)
	return user, ok
}

func currentActor(c *gin.Context) (slipdomain.Actor, bool) {
	user, ok := currentUser(c)
	if !ok {
		return slipdomain.Actor{}, false
	}
	return user.Actor(), true
}
