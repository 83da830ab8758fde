package factory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"balloon-service/internal/config"
	"balloon-service/internal/etag"
	"balloon-service/internal/models"
	"balloon-service/internal/service"
	"balloon-service/internal/util"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	util.Replace(zap.NewNop())
	for _, k := range []string{"STORE_BACKEND", "AUTH_TOKENS", "AUTH_TOKEN", "INGRESS_RATE_ENABLED",
		"AUDIT_KAFKA_ENABLED", "AUDIT_CLICKHOUSE_ENABLED", "ENABLE_TLS"} {
		t.Setenv(k, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	return config.LoadConfig()
}

func TestNewFactoryWithConfig_Memory(t *testing.T) {
	f, err := NewFactoryWithConfig(loadConfig(t, map[string]string{
		"AUTH_TOKENS":          "alice",
		"INGRESS_RATE_ENABLED": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	assert.True(t, f.Authorizer().Enforcing())
	assert.NotNil(t, f.IngressStore())
	assert.Nil(t, f.TLSManager())
	assert.NoError(t, f.HealthCheck(context.Background()))
	assert.Equal(t, map[string]error{"store": nil}, f.HealthReport(context.Background()))

	sf := f.ServiceFactory()
	assert.Same(t, sf, f.ServiceFactory())
	assert.Same(t, sf.BalloonService(), sf.BalloonService())

	tag, err := etag.Strong(models.DefaultBalloon())
	require.NoError(t, err)
	st, err := sf.BalloonService().UpdateBalloon(context.Background(), service.UpdateRequest{
		UserName: "alice", IfMatch: tag, FillStatus: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Balloon.FillStatus)

	stats, _, err := sf.StatisticsService().Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestNewFactoryWithConfig_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	f, err := NewFactoryWithConfig(loadConfig(t, map[string]string{
		"STORE_BACKEND": "redis",
		"REDIS_URL":     "redis://" + mr.Addr(),
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	tag, err := etag.Strong(models.DefaultBalloon())
	require.NoError(t, err)
	_, err = f.ServiceFactory().BalloonService().UpdateBalloon(context.Background(), service.UpdateRequest{
		UserName: "bob", IfMatch: tag, FillStatus: 1,
	})
	require.NoError(t, err)

	raw, err := mr.Get("balloon_state:" + models.BalloonStatusKey)
	require.NoError(t, err)
	assert.Equal(t, `{"fillStatus":1}`, raw)
	assert.True(t, mr.Exists("user_stats:bob"))
	assert.NoError(t, f.HealthCheck(context.Background()))
}

func TestNewFactoryWithConfig_InvalidConfig(t *testing.T) {
	_, err := NewFactoryWithConfig(loadConfig(t, map[string]string{"STORE_BACKEND": "etcd"}))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestClose_Idempotent(t *testing.T) {
	f, err := NewFactoryWithConfig(loadConfig(t, nil))
	require.NoError(t, err)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	f.WaitForClose()
}
