// Package container holds the process-wide components built once in main.
package container

import (
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-service/config"
	appuser "github.com/oksasatya/go-user-service/internal/application"
	"github.com/oksasatya/go-user-service/pkg/helpers"
)

// Container is the explicit dependency set shared by the router modules.
// Pool, Redis, ES and Publisher are nil when the matching backend is disabled.
type Container struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	ES        *elasticsearch.Client
	Publisher *helpers.RabbitPublisher
	Users     *appuser.Service
}

// Close releases every backend handle in reverse order of construction.
func (c *Container) Close() {
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			helpers.LogWarn(c.Logger, "redis close failed", err, nil)
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
