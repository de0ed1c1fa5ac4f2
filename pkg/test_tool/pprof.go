package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"github.com/pawtograder/platform-sub008/pkg/config"
	"github.com/pawtograder/platform-sub008/pkg/logger"

	"go.uber.org/zap"
)

// StartPprof 非 production 環境在 addr 上啟動 pprof
func StartPprof(addr string) {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Log.Error("pprof server failed", zap.Error(err))
		}
	}()
}
