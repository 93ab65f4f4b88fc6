// recod 是推荐引擎的服务进程：加载配置，组装存储与引擎，暴露 HTTP API。
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/artfolio/reco/aggregate"
	"github.com/artfolio/reco/config"
	_ "github.com/artfolio/reco/config/builders"
	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/eventlog"
	"github.com/artfolio/reco/feast"
	"github.com/artfolio/reco/pipeline"
	"github.com/artfolio/reco/service"
	"github.com/artfolio/reco/store"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "listen address")
		configPath   = flag.String("config", "", "engine config file (yaml), empty for defaults")
		redisAddr    = flag.String("redis", "", "redis address, empty for in-memory store")
		pipelinePath = flag.String("pipeline", "", "rank stage pipeline file (yaml), empty for built-in scoring")
		feastAddr    = flag.String("feast", "", "feast feature server host:port, empty for kv-backed moderation")
		feastProject = flag.String("feast-project", "artfolio", "feast project for moderation features")
	)
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg := core.DefaultEngineConfig()
	if *configPath != "" {
		loaded, err := core.LoadEngineConfig(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("load config failed")
		}
		cfg = loaded
	}

	var kv core.KeyValueStore
	if *redisAddr != "" {
		rs, err := store.NewRedisStore(*redisAddr, 0)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect redis failed")
		}
		kv = rs
		logger.Info().Str("addr", *redisAddr).Msg("using redis store")
	} else {
		kv = store.NewMemoryStore()
		logger.Info().Msg("using in-memory store")
	}
	defer kv.Close()

	embeddings := store.NewMemoryEmbeddingStore(cfg.Dimension)
	defer embeddings.Close()

	log := eventlog.New(kv, cfg, logger)
	profiles := aggregate.NewStoreAdapter(kv)
	agg := aggregate.New(profiles, embeddings, cfg, logger)

	var moderation core.ModerationProvider = service.NewStoreModeration(kv)
	if *feastAddr != "" {
		host, portStr, err := net.SplitHostPort(*feastAddr)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", *feastAddr).Msg("invalid feast address")
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", *feastAddr).Msg("invalid feast port")
		}
		fc, err := feast.NewGrpcClient(host, port, *feastProject)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect feast failed")
		}
		defer fc.Close()
		moderation = feast.NewModerationProvider(fc)
		logger.Info().Str("addr", *feastAddr).Str("project", *feastProject).Msg("using feast moderation features")
	}

	engine := service.New(kv, embeddings, log, agg, moderation, cfg, logger)

	if *pipelinePath != "" {
		pcfg, err := pipeline.LoadFromYAML(*pipelinePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *pipelinePath).Msg("load pipeline failed")
		}
		if err := config.ValidatePipelineConfig(pcfg); err != nil {
			logger.Fatal().Err(err).Str("path", *pipelinePath).Msg("invalid pipeline config")
		}
		stage, err := pcfg.BuildPipeline(config.DefaultFactory())
		if err != nil {
			logger.Fatal().Err(err).Str("path", *pipelinePath).Msg("build pipeline failed")
		}
		engine.SetRankStage(stage)
		logger.Info().Str("path", *pipelinePath).Msg("using configured rank stage")
	}

	server := service.NewServer(engine, logger)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", *addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}

	// 排空应用队列，等待未完成的画像聚合落盘
	engine.Close()
}
