package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyeon-ai/realtime-gateway/internal/config"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "cleanup"}, names)
	assert.NotNil(t, root.Flags().Lookup("port"))
}

func TestCleanup(t *testing.T) {
	cfg := &config.Config{Environment: "production", LogLevel: "error"}

	assert.ErrorContains(t, cleanup(context.Background(), cfg, 0), "days must be at least 1")
	assert.ErrorContains(t, cleanup(context.Background(), cfg, 30), "no store configured")

	cfg.StoreDSN = "sqlite://" + t.TempDir() + "/zyeon.db"
	require.NoError(t, cleanup(context.Background(), cfg, 30))
}
