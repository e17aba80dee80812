package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/jkbms-gateway/internal/config"
	"github.com/taoyao-code/jkbms-gateway/internal/health"
	"github.com/taoyao-code/jkbms-gateway/internal/poller"
	"github.com/taoyao-code/jkbms-gateway/internal/simulator"
)

func TestOpenTransport_Simulator(t *testing.T) {
	tr, err := OpenTransport(cfgpkg.SerialConfig{Device: "sim://"}, zap.NewNop())
	require.NoError(t, err)
	defer tr.Close()

	_, ok := tr.(*simulator.Device)
	assert.True(t, ok)

	_, err = OpenTransport(cfgpkg.SerialConfig{Device: "sim://?fault=nope"}, zap.NewNop())
	require.Error(t, err)
}

func TestOpenTransport_MissingDevice(t *testing.T) {
	_, err := OpenTransport(cfgpkg.SerialConfig{Device: "/dev/does-not-exist-jkbms", BaudRate: 115200}, zap.NewNop())
	require.Error(t, err)
}

func TestNewHealthAggregator(t *testing.T) {
	cfg := cfgpkg.PollConfig{Interval: time.Second, BreakerThreshold: 3, BreakerTimeout: time.Second}
	p := poller.New(simulator.New(simulator.DefaultStatus()), cfg)
	agg := NewHealthAggregator(p, cfg)

	assert.Equal(t, health.StatusDegraded, agg.OverallStatus(context.Background()))
	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, agg.OverallStatus(context.Background()))
}
