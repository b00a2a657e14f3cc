package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sievebot/sieve/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "sieve",
		Usage:   "moderation console data service (detection accuracy and state)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "info|debug|warn|error",
			Value:   "info",
			EnvVars: []string{"SIEVE_LOG_LEVEL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/sieve/sieve.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for the report cache (optional)",
			EnvVars: []string{"SIEVE_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3150",
			EnvVars: []string{"SIEVE_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3151",
			EnvVars: []string{"SIEVE_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "high-trust-check",
			Usage:   "name of the check whose clean verdicts veto other checks' spam votes",
			Value:   "OpenAI",
			EnvVars: []string{"SIEVE_HIGH_TRUST_CHECK"},
		},
		&cli.IntFlag{
			Name:    "recent-veto-limit",
			Usage:   "max veto instances in the recent-vetoes audit view",
			Value:   20,
			EnvVars: []string{"SIEVE_RECENT_VETO_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "ingest-rate-limit",
			Usage:   "max detection event ingest requests per second",
			Value:   50,
			EnvVars: []string{"SIEVE_INGEST_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "report-cache-ttl",
			Value:   10 * time.Minute,
			EnvVars: []string{"SIEVE_REPORT_CACHE_TTL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel: cctx.String("log-level"),
		})
		if err != nil {
			return err
		}

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			logger.Info("setting up trace exporter", "endpoint", ep)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				return fmt.Errorf("failed to create trace exporter: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					logger.Error("failed to shutdown trace exporter", "err", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("sieve"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}

		srv, err := NewServer(db, Config{
			Logger:          logger,
			RedisURL:        cctx.String("redis-url"),
			HighTrustCheck:  cctx.String("high-trust-check"),
			RecentVetoLimit: cctx.Int("recent-veto-limit"),
			IngestRateLimit: cctx.Int("ingest-rate-limit"),
			ReportCacheTTL:  cctx.Duration("report-cache-ttl"),
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				logger.Error("failed to start metrics endpoint", "err", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		return srv.RunAPI(cctx.String("bind"))
	},
}
