package main

import (
	"testing"

	"tgcord/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		verbose  bool
		expected logrus.Level
	}{
		{name: "verbose wins", level: "error", verbose: true, expected: logrus.DebugLevel},
		{name: "configured level", level: "warn", expected: logrus.WarnLevel},
		{name: "invalid level falls back to info", level: "loud", expected: logrus.InfoLevel},
		{name: "default info", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := quietLogger()
			configureLogLevel(logger, tt.level, tt.verbose)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

func TestBuildRouter(t *testing.T) {
	cfg := &models.Config{Discord: models.DiscordConfig{
		Routes: []models.Route{
			{Tag: "#ALGORITMO", WebhookURL: "https://discord.com/api/webhooks/1/a"},
			{Tag: "#NEWS", WebhookURL: ""},
		},
		DefaultWebhookURL: "https://discord.com/api/webhooks/2/b",
	}}

	r, err := buildRouter(cfg)
	require.NoError(t, err)

	endpoint, tag, ok := r.Resolve("hello #ALGORITMO")
	require.True(t, ok)
	assert.Equal(t, "https://discord.com/api/webhooks/1/a", endpoint)
	assert.Equal(t, "ALGORITMO", tag)

	endpoint, _, ok = r.Resolve("breaking #NEWS")
	require.True(t, ok)
	assert.Equal(t, "https://discord.com/api/webhooks/2/b", endpoint)
}

func TestRouteTable_PreservesOrder(t *testing.T) {
	cfg := &models.Config{Discord: models.DiscordConfig{Routes: []models.Route{
		{Tag: "#B", WebhookURL: "b"},
		{Tag: "#A", WebhookURL: "a"},
	}}}

	routes := routeTable(cfg)
	require.Len(t, routes, 2)
	assert.Equal(t, "#B", routes[0].Tag)
	assert.Equal(t, "a", routes[1].Endpoint)
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, ":8082", serverAddr(0))
	assert.Equal(t, ":9000", serverAddr(9000))
}
