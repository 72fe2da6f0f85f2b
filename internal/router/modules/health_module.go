package modules

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthModule reports backend reachability on GET /healthz.
// Backends left nil are reported as "disabled".
type HealthModule struct {
	DB    Pinger
	Redis *redis.Client
}

func NewHealthModule(rdb *redis.Client) *HealthModule {
	return &HealthModule{Redis: rdb}
}

func (m *HealthModule) Register(rg *gin.RouterGroup) {
	rg.GET("/healthz", m.check)
}

func (m *HealthModule) check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "disabled"
	if m.DB != nil {
		dbStatus = "ok"
		if err := m.DB.Ping(ctx); err != nil {
			dbStatus = err.Error()
		}
	}
	redisStatus := "disabled"
	if m.Redis != nil {
		redisStatus = "ok"
		if err := m.Redis.Ping(ctx).Err(); err != nil {
			redisStatus = err.Error()
		}
	}

	status := http.StatusOK
	if (m.DB != nil && dbStatus != "ok") || (m.Redis != nil && redisStatus != "ok") {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":    gin.H{"postgres": dbStatus, "redis": redisStatus},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
