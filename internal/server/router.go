// Package server wires every resource onto one gin engine.
package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"library-backend/internal/catalog"
	"library-backend/internal/lending"
	"library-backend/internal/membership"
	"library-backend/internal/platform/apperr"
	"library-backend/internal/platform/auth"
	"library-backend/internal/platform/config"
	"library-backend/internal/platform/logging"
)

// Services は起動時に組み立てるサービス群
type Services struct {
	Auth       *auth.Service
	Catalog    *catalog.Service
	Membership *membership.Service
	Lending    *lending.Service
}

func NewServices(conn *sqlx.DB, cfg *config.Config, log logrus.FieldLogger) Services {
	return Services{
		Auth:       auth.NewService(auth.NewStore(conn), cfg.Auth, log),
		Catalog:    catalog.NewService(conn, log),
		Membership: membership.NewService(conn, log),
		Lending:    lending.NewService(conn, log).WithLoanPeriod(cfg.Lending.LoanPeriodDays),
	}
}

func NewRouter(cfg *config.Config, conn *sqlx.DB, svc Services, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(log))
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		origins := cfg.Server.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logging.HeaderRequestID},
			ExposeHeaders:    []string{"Content-Length", "Location", logging.HeaderRequestID},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		if err := conn.PingContext(c.Request.Context()); err != nil {
			logging.FromGin(c).WithError(err).Error("healthz: db ping failed")
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterRoutes(api, svc.Auth)
	membership.RegisterPublicRoutes(api, svc.Membership)

	private := api.Group("", auth.RequireAuth(svc.Auth.Secret()))
	catalog.RegisterRoutes(private, svc.Catalog, auth.RequireRole(auth.RoleStaff))
	membership.RegisterRoutes(private, svc.Membership)
	lending.RegisterRoutes(private, svc.Lending)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apperr.NewBody(apperr.CodeNotFound, "route not found"))
	})
	return r
}
