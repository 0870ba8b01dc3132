package pyroscope

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"watchearn/pkg/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestNewConfig(t *testing.T) {
	cfg := &config.Config{AppName: "watchearn", AppEnv: "production"}
	cfg.Pyroscope.Addr = "http://pyroscope:4040"

	pc := NewConfig(cfg)
	require.Equal(t, "watchearn", pc.ApplicationName)
	require.Equal(t, "http://pyroscope:4040", pc.ServerAddress)
	require.Equal(t, "production", pc.Tags["env"])
}

func TestStartDisabledWithoutAddress(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	require.NoError(t, Start(lc, &config.Config{}))
	lc.RequireStart().RequireStop()
}
