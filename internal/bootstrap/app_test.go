package bootstrap

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/marketplace/internal/config"
	"github.com/rl1809/marketplace/internal/core/service"
	"github.com/rl1809/marketplace/internal/logging"
)

func memoryConfig(redisAddr string) config.Config {
	var cfg config.Config
	cfg.Storage.Driver = "memory"
	cfg.Notify.Driver = "log"
	cfg.Notify.Workers = 2
	cfg.Notify.QueueSize = 16
	cfg.Notify.JobTimeout = time.Second
	cfg.Redis.Addr = redisAddr
	cfg.Security.JWTSecret = "s3cret"
	return cfg
}

func TestInit_FailureLeavesNoWorkers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		errMsg string
	}{
		{"unknown notify driver", func(c *config.Config) { c.Notify.Driver = "pager" }, "unsupported notify driver"},
		{"bad commission rate", func(c *config.Config) { c.Checkout.CommissionRate = "1.5" }, "commission_rate"},
		{"redis unreachable", func(c *config.Config) {}, "connect redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig("127.0.0.1:1")
			tt.mutate(&cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			a := &App{cfg: cfg, logger: logging.New("bootstrap")}
			err := a.init(ctx)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Nil(t, a.dispatcher, "dispatcher must not start before wiring succeeds")

			app, cleanup, err := InitWithConfig(ctx, cfg)
			require.Error(t, err)
			assert.Nil(t, app)
			assert.Nil(t, cleanup)
		})
	}
}

func TestInit_CleanupClosesDispatcher(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app, cleanup, err := InitWithConfig(ctx, memoryConfig(addr))
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	require.NotNil(t, app.dispatcher)

	cleanup()
	assert.False(t, app.dispatcher.Submit(service.Job{
		Name: "after_close",
		Run:  func(ctx context.Context) error { return nil },
	}))
}
