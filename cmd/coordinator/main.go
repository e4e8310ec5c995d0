package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/flcoord"
	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/api"
	"github.com/absmach/flcoord/coordinator/middleware"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/link"
	"github.com/absmach/flcoord/pkg/mqtt"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName          = "coordinator"
	defHTTPPort      = "7070"
	envPrefixHTTP    = "FLCOORD_HTTP_"
	pathEnv          = ".env"
	eventTopicFormat = "m/%s/c/%s/events"
	shutdownTimeout  = 10 * time.Second
)

type envConfig struct {
	LogLevel    string        `env:"FLCOORD_LOG_LEVEL"      envDefault:"info"`
	InstanceID  string        `env:"FLCOORD_INSTANCE_ID"`
	ConfigPath  string        `env:"FLCOORD_CONFIG"`
	MQTTAddress string        `env:"FLCOORD_MQTT_ADDRESS"`
	MQTTQoS     uint8         `env:"FLCOORD_MQTT_QOS"       envDefault:"2"`
	MQTTTimeout time.Duration `env:"FLCOORD_MQTT_TIMEOUT"   envDefault:"30s"`
	ClientID    string        `env:"FLCOORD_CLIENT_ID"`
	ClientKey   string        `env:"FLCOORD_CLIENT_KEY"`
	DomainID    string        `env:"FLCOORD_DOMAIN_ID"`
	ChannelID   string        `env:"FLCOORD_CHANNEL_ID"`
	OTELURL     url.URL       `env:"FLCOORD_OTEL_URL"`
	TraceRatio  float64       `env:"FLCOORD_TRACE_RATIO"    envDefault:"0"`
	Coordinator coordinator.Config
	Storage     storage.Config
	Checkpoint  checkpoint.Config
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	fileCfg := &flcoord.Config{}
	if cfg.ConfigPath != "" {
		c, err := flcoord.LoadConfig(cfg.ConfigPath)
		if err != nil {
			logger.Error("failed to load config file", slog.String("path", cfg.ConfigPath), slog.String("error", err.Error()))

			return
		}
		fileCfg = c
	}
	coordCfg, err := fileCfg.Coordinator.Apply(cfg.Coordinator)
	if err != nil {
		logger.Error("invalid coordinator tunables", slog.String("error", err.Error()))

		return
	}

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	repos, err := storage.NewRepositories(cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("type", cfg.Storage.Type), slog.String("error", err.Error()))

		return
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	store, err := checkpoint.New(ctx, cfg.Checkpoint)
	if err != nil {
		logger.Error("failed to initialize checkpoint store", slog.String("type", cfg.Checkpoint.Type), slog.String("error", err.Error()))

		return
	}

	dropped := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: svcName,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Number of events dropped because an observer queue was full.",
	}, []string{"type"})
	bus := events.NewBus(coordCfg.EventQueueSize, dropped, logger)

	var (
		pubsub    mqtt.PubSub
		transport link.Transport
	)
	if cfg.MQTTAddress != "" {
		pubsub, err = mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, svcName, cfg.ClientID, cfg.ClientKey, cfg.DomainID, cfg.ChannelID, cfg.MQTTTimeout, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
		}
		transport = link.NewMQTTTransport(pubsub, cfg.DomainID, cfg.ChannelID)
	}

	svc := coordinator.NewService(repos, store, bus, transport, coordCfg, logger)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if err := flcoord.SeedProjects(ctx, svc, fileCfg.Projects, logger); err != nil {
		logger.Error("failed to seed projects", slog.String("error", err.Error()))

		return
	}

	if pubsub != nil {
		if err := coordinator.Subscribe(ctx, svc, pubsub, cfg.DomainID, cfg.ChannelID, logger); err != nil {
			logger.Error("failed to subscribe to participant channel", slog.String("error", err.Error()))

			return
		}

		observer, err := svc.Subscribe(ctx, "")
		if err != nil {
			logger.Error("failed to observe events", slog.String("error", err.Error()))

			return
		}
		g.Go(func() error {
			defer observer.Close()

			return events.Forward(ctx, observer, pubsub, fmt.Sprintf(eventTopicFormat, cfg.DomainID, cfg.ChannelID), logger)
		})
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := svc.Shutdown(shutdownCtx); err != nil {
			logger.Warn("coordinator shutdown incomplete", slog.String("error", err.Error()))
		}
		if pubsub != nil {
			if err := pubsub.Disconnect(shutdownCtx); err != nil {
				logger.Warn("failed to disconnect mqtt client", slog.String("error", err.Error()))
			}
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}
