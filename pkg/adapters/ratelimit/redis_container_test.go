//go:build container
// +build container

package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
)

// TestRedisLimiterAgainstRealRedis runs the sliding window script on a real
// server. Run with: go test -tags container ./pkg/adapters/ratelimit/...
func TestRedisLimiterAgainstRealRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { client.Close() })

	l, err := NewRedisLimiter(client, WithPrefix(fmt.Sprintf("ct-%d:", time.Now().UnixNano())))
	require.NoError(t, err)

	limit := domain.RateLimit{Count: 2, Window: time.Second}
	now := time.Now()

	for i := 0; i < 2; i++ {
		adm, err := l.Admit(ctx, "k", "c", limit, now)
		require.NoError(t, err)
		assert.True(t, adm.Admitted)
	}

	adm, err := l.Admit(ctx, "k", "c", limit, now)
	require.NoError(t, err)
	assert.False(t, adm.Admitted)
	assert.Greater(t, adm.RetryAfter, time.Duration(0))

	adm, err = l.Admit(ctx, "k", "c", limit, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, adm.Admitted)
}
