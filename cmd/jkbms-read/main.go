// jkbms-read 读取一次 JK BMS 状态并打印；--watch 时订阅 Redis 广播持续输出。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/taoyao-code/jkbms-gateway/internal/app"
	cfgpkg "github.com/taoyao-code/jkbms-gateway/internal/config"
	"github.com/taoyao-code/jkbms-gateway/internal/logging"
	"github.com/taoyao-code/jkbms-gateway/internal/poller"
)

// openDelay 串口打开后等待设备就绪
const openDelay = 500 * time.Millisecond

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "config file (default: $BMS_CONFIG or configs/example.yaml)")
		device     = pflag.StringP("device", "d", "", "serial device, overrides serial.device (sim:// for the simulator)")
		format     = pflag.StringP("format", "f", formatText, "output format: text, json or yaml")
		watch      = pflag.BoolP("watch", "w", false, "print readings published to redis instead of polling")
		verbose    = pflag.BoolP("verbose", "v", false, "debug logging")
	)
	pflag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logging.NewConsole(level)
	defer func() { _ = log.Sync() }()

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *watch {
		err = watchRedis(ctx, cfg, *format, log)
	} else {
		err = readOnce(ctx, cfg, *format, log)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func readOnce(ctx context.Context, cfg *cfgpkg.Config, format string, log *zap.Logger) error {
	transport, err := app.OpenTransport(cfg.Serial, log)
	if err != nil {
		return err
	}
	defer transport.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(openDelay):
	}

	p := poller.New(transport, cfg.Poll, poller.WithLogger(log))
	snap, err := p.Poll(ctx)
	if err != nil {
		return err
	}
	return writeSnapshot(os.Stdout, format, snap)
}

func watchRedis(ctx context.Context, cfg *cfgpkg.Config, format string, log *zap.Logger) error {
	cfg.Redis.Enabled = true
	client, err := app.NewRedisClient(cfg.Redis, log)
	if err != nil {
		return err
	}
	defer client.Close()
	store := app.NewStatusStore(client, cfg.Redis)

	if snap, err := store.Latest(ctx); err == nil {
		if err := writeSnapshot(os.Stdout, format, snap); err != nil {
			return err
		}
	}
	ch, err := store.Subscribe(ctx)
	if err != nil {
		return err
	}
	for snap := range ch {
		if err := writeSnapshot(os.Stdout, format, snap); err != nil {
			return err
		}
	}
	return ctx.Err()
}
