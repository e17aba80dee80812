package app

import (
	"strings"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/jkbms-gateway/internal/config"
	"github.com/taoyao-code/jkbms-gateway/internal/poller"
	"github.com/taoyao-code/jkbms-gateway/internal/serialport"
	"github.com/taoyao-code/jkbms-gateway/internal/simulator"
)

// Transport 轮询所用的字节通道，可关闭
type Transport interface {
	poller.Transport
	Close() error
}

// OpenTransport 按设备路径打开串口；sim:// 前缀使用内置模拟器
func OpenTransport(cfg cfgpkg.SerialConfig, log *zap.Logger) (Transport, error) {
	if strings.HasPrefix(cfg.Device, simulator.Scheme) {
		dev, err := simulator.Open(cfg.Device)
		if err != nil {
			return nil, err
		}
		log.Warn("using simulated bms", zap.String("device", cfg.Device))
		return dev, nil
	}
	port, err := serialport.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return port, nil
}
