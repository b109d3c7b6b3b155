package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordersvc/internal/app"
	"github.com/vladislavdragonenkov/ordersvc/internal/version"
)

func TestSetupLogger(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	require.NoError(t, setupLogger("debug"))
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	require.NoError(t, setupLogger("WARN"))
	assert.Equal(t, log.WarnLevel, log.GetLevel())

	require.Error(t, setupLogger("loud"))
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestStartupFields(t *testing.T) {
	cfg := app.DefaultConfig()
	build := version.Build{Version: "v1.4.0", Commit: "3f2c1ab9e0d4", Date: "2024-05-01T10:00:00Z"}

	fields := startupFields(build, cfg)
	assert.Equal(t, "ordersvc", fields["service"])
	assert.Equal(t, "v1.4.0", fields["version"])
	assert.Equal(t, "3f2c1ab", fields["commit"])
	assert.Equal(t, "2024-05-01T10:00:00Z", fields["build_date"])
	assert.Equal(t, ":8080", fields["http_addr"])
	assert.Equal(t, "memory", fields["storage_driver"])
	assert.Equal(t, "stub", fields["user_directory"])

	cfg.UserServiceURL = "http://users:8080"
	assert.Equal(t, "http://users:8080", startupFields(build, cfg)["user_directory"])
}

func TestStartupFieldsUseLinkedBuild(t *testing.T) {
	fields := startupFields(version.Current(), app.DefaultConfig())
	assert.Equal(t, version.Current().Version, fields["version"])
}
