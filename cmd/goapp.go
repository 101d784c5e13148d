package main

import (
	"context"
	"fmt"
	"github.com/Geniuskaa/participant_registry/internal/config"
	"github.com/Geniuskaa/participant_registry/pkg/collection"
	"github.com/Geniuskaa/participant_registry/pkg/database"
	"github.com/Geniuskaa/participant_registry/pkg/metrics"
	"github.com/Geniuskaa/participant_registry/pkg/parser"
	"github.com/Geniuskaa/participant_registry/pkg/participant"
	"github.com/Geniuskaa/participant_registry/pkg/server"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

const (
	service     = "participant-registry"
	environment = "production"
	id          = 1
)

func main() {

	conf, err := config.NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error with reading config:", err)
		os.Exit(1)
	}

	if err := execute(net.JoinHostPort(conf.App.Host, conf.App.Port), conf); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

}

func execute(addr string, conf *config.Entity) (err error) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, atom, err := loggerInit(conf.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if conf.Jag.Dsn != "" {
		tp, err := tracerProvider(conf.Jag.Dsn)
		if err != nil {
			return fmt.Errorf("tracerProvider failed: %w", err)
		}
		otel.SetTracerProvider(tp)

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	store, closeStore, err := storeInit(ctx, logger, conf)
	if err != nil {
		logger.Error("Store initialization failed", zap.Error(err))
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	serv := participant.NewService(store, logger, participant.WithRecorder(m))
	handler := participant.NewHandler(logger, serv, parser.Impl{})

	application := server.NewServer(ctx, logger, chi.NewRouter(), handler, conf)
	application.Init(m, reg)

	// Using dynamic change of the log level from the config file
	if viper.ConfigFileUsed() != "" {
		application.WatchLogLevel(viper.GetViper(), atom)
	}

	logger.Info("Store ready", zap.String("driver", conf.Store.Driver), zap.String("collection", conf.Store.Collection))
	return application.Start(addr)
}

func storeInit(ctx context.Context, logger *zap.Logger, conf *config.Entity) (collection.Store, func(), error) {
	switch conf.Store.Driver {
	case config.DriverRedis:
		client, err := database.RedisCreation(ctx, conf)
		if err != nil {
			return nil, nil, err
		}
		return collection.NewRedis(client, conf.Store.Collection), func() { client.Close() }, nil

	case config.DriverPostgres:
		pool, err := database.PoolCreation(ctx, logger, conf)
		if err != nil {
			return nil, nil, err
		}
		store := collection.NewPostgres(pool, conf.Store.Collection)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		logger.Warn("Using in-memory store, data is lost on restart")
		return collection.NewMemory(conf.Store.Collection), func() {}, nil
	}
}

func loggerInit(conf config.Log) (*zap.Logger, zap.AtomicLevel, error) {

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC1123Z)
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("loggerInit failed: %w", err)
	}
	atom := zap.NewAtomicLevelAt(level)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), atom),
	}

	if conf.File != "" {
		if err := os.MkdirAll(filepath.Dir(conf.File), 0o755); err != nil {
			return nil, zap.AtomicLevel{}, fmt.Errorf("loggerInit failed: %w", err)
		}
		file, err := os.OpenFile(conf.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, zap.AtomicLevel{}, fmt.Errorf("loggerInit failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(file), atom))
	}

	logger := zap.New(zapcore.NewTee(cores...))

	return logger, atom, nil
}

func tracerProvider(url string) (*tracesdk.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, err
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(service),
			attribute.String("environment", environment),
			attribute.Int64("ID", id),
		)),
	)
	return tp, nil
}
