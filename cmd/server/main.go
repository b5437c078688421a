package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoon-dev/greenwire/params"
	"github.com/jmoon-dev/greenwire/pkg/api"
	"github.com/jmoon-dev/greenwire/pkg/relay"
	"github.com/jmoon-dev/greenwire/pkg/storage"
	"github.com/jmoon-dev/greenwire/pkg/util"
	"github.com/jmoon-dev/greenwire/pkg/wire"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := relay.Bind(sugar, cfg.Relay.ListenAddr, cfg.Relay.ChannelCapacity)
	if err != nil {
		sugar.Fatalw("bind_failed", "addr", cfg.Relay.ListenAddr, "err", err)
	}

	// ---- Trade tape (optional) ----
	var trades api.TradeSource
	if cfg.Storage.TradeLog {
		tape, err := storage.OpenTradeLog(cfg.Storage.DataDir)
		if err != nil {
			sugar.Fatalw("tradelog_open_failed", "dir", cfg.Storage.DataDir, "err", err)
		}
		defer tape.Close()
		srv.Tape = tape
		trades = tape
		sugar.Infow("tradelog_enabled", "dir", cfg.Storage.DataDir)
	}

	// ---- Observability API ----
	apiServer := api.NewServer(srv.Stats(), trades)
	srv.OnTrade = func(t wire.Trade) {
		apiServer.BroadcastTrade(t.Product.String())
	}
	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.API.Addr)
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("relay_starting",
		"listen", cfg.Relay.ListenAddr,
		"channel_capacity", cfg.Relay.ChannelCapacity)

	if err := srv.Run(ctx); err != nil {
		sugar.Fatalw("relay_failed", "err", err)
	}
	sugar.Info("relay stopped")
}
