package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	cfg "imgserv/src/configuration"
)

func newRouter(config *cfg.Properties, metrics *Metrics, log logrus.FieldLogger) *gin.Engine {
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log), metrics.Middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(config),
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if config.Server.Pprof {
		pprof.Register(router)
	}

	router.GET("/health", GetHealth)
	router.GET("/metrics", metrics.Handler())
	router.NoRoute(func(c *gin.Context) { abortWithDetail(c, http.StatusNotFound, "Not Found") })
	return router
}

func corsOrigins(config *cfg.Properties) []string {
	origins := append([]string{}, config.Server.CORSOrigins...)
	if config.FrontendURL != "" {
		for _, o := range origins {
			if o == config.FrontendURL {
				return origins
			}
		}
		origins = append(origins, config.FrontendURL)
	}
	return origins
}

// NewAuthRouter wires the OAuth and token endpoints.
func NewAuthRouter(config *cfg.Properties, handler *AuthHandler, verifier TokenVerifier, metrics *Metrics, log logrus.FieldLogger) *gin.Engine {
	router := newRouter(config, metrics, log)
	requireUser := RequireUser(verifier, log)

	oauth := router.Group("/auth/oauth")
	oauth.GET("/google", handler.Login)
	oauth.GET("/google/callback", handler.Callback)
	oauth.POST("/refresh", handler.Refresh)
	oauth.POST("/test-token", handler.TestToken)

	router.POST("/auth/verify", requireUser, handler.Verify)
	router.GET("/auth/me", requireUser, handler.Me)
	return router
}

// NewAPIRouter wires the upload and image endpoints.
func NewAPIRouter(config *cfg.Properties, handler *ImageHandler, verifier TokenVerifier, metrics *Metrics, log logrus.FieldLogger) *gin.Engine {
	router := newRouter(config, metrics, log)
	requireUser := RequireUser(verifier, log)

	router.POST("/uploads", requireUser, handler.CreateUpload)
	router.GET("/images", requireUser, handler.ListMine)
	router.GET("/images/*key", handler.GetByKey)
	router.GET("/users/:id", handler.GetUser)
	return router
}

func NewHTTPServer(config *cfg.Properties, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: config.Server.ReadTimeout,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to shutdownTimeout.
func Run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, log logrus.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
