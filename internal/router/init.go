package router

import (
	"path"

	"github.com/oksasatya/go-user-service/internal/container"
	handlers "github.com/oksasatya/go-user-service/internal/interface/http"
	"github.com/oksasatya/go-user-service/internal/interface/middleware"
	"github.com/oksasatya/go-user-service/internal/router/modules"
)

// InitModules wires every feature module from the container into the registry.
// Call it once during startup, before RegisterAll.
func InitModules(r *Registry, c *container.Container) {
	cfg := c.Config

	// one per-IP budget across every module; health checks are never limited
	r.Use(middleware.RateLimit(c.Redis, cfg.RateLimitMax, cfg.RateLimitWindow, middleware.KeyByIP(),
		middleware.AllowPaths(path.Join(r.API.BasePath(), "/healthz"))))

	health := modules.NewHealthModule(c.Redis)
	if c.Pool != nil {
		health.DB = c.Pool
	}
	r.Add(health)

	userHandler := handlers.NewUserHandler(c.Users, c.Logger)
	r.Add(modules.NewUserModule(userHandler))

	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(c.Redis))
	}
}
