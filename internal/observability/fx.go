package observability

import (
	"github.com/smallbiznis/dotation/internal/config"
	"github.com/smallbiznis/dotation/internal/observability/logger"
	"github.com/smallbiznis/dotation/internal/observability/metrics"
	"github.com/smallbiznis/dotation/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideLoggerConfig,
		logger.New,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		provideGormLogger,
	),
	fx.Invoke(ensureTracingProvider),
	fx.Invoke(ensureDotationMetrics),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}

func ensureDotationMetrics(cfg metrics.Config) {
	metrics.DotationWithConfig(cfg)
}

func provideGormLogger(cfg Config, policy config.PolicySource, log *zap.Logger, m metrics.Config) gormlogger.Interface {
	return newGormLogger(cfg, config.PolicyOrDefault(policy), log.Named("db"), metrics.DotationWithConfig(m))
}

func newGormLogger(cfg Config, policy config.DotationPolicy, log *zap.Logger, recorder logger.SlowQueryRecorder) *logger.GormLogger {
	level := gormlogger.Warn
	if cfg.LogSQL {
		level = gormlogger.Info
	}
	return logger.NewGormLogger(logger.GormLoggerConfig{
		Level:         level,
		SlowThreshold: cfg.SlowQueryThreshold,
		QueryTimeout:  policy.QueryTimeout,
		Recorder:      recorder,
		Base:          log,
	})
}
