// flowforge command entry point.
//
// Usage:
//
//	flowforge serve                       # start the demo host server
//	flowforge serve --config config.yaml  # with a config file
//	flowforge run --workflow chain        # run a built-in workflow once
//	flowforge version                     # show version information
//	flowforge health                      # check a running server
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/flowforge-ai/flowforge/config"
	"github.com/flowforge-ai/flowforge/internal/telemetry"
	"github.com/flowforge-ai/flowforge/workflow"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "run":
		runOnce(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting flowforge",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	store, err := buildCheckpointStore(cfg, logger)
	if err != nil {
		logger.Warn("checkpoint backend unavailable, falling back to memory",
			zap.String("backend", cfg.Checkpoint.Backend), zap.Error(err))
		store = workflow.NewMemoryCheckpointStore()
	}

	server := NewServer(cfg, logger, otelProviders, workflow.NewCheckpointManager(store, logger))

	if err := server.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	server.WaitForShutdown()
	logger.Info("flowforge stopped")
}

func runOnce(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	name := fs.String("workflow", "chain", "Built-in workflow to run")
	definition := fs.String("definition", "", "YAML workflow definition to run instead")
	input := fs.String("input", "hello from flowforge", "Workflow input")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	var wf *workflow.GraphWorkflow
	if *definition != "" {
		def, err := workflow.LoadDefinition(*definition)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load definition: %v\n", err)
			os.Exit(1)
		}
		wf, err = workflow.BuildWorkflow(def, defaultRegistry())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to build workflow: %v\n", err)
			os.Exit(1)
		}
	} else {
		workflows := builtinWorkflows()
		var ok bool
		wf, ok = workflows[*name]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown workflow: %s\n", *name)
			fmt.Fprintf(os.Stderr, "Available: %v\n", workflowNames(workflows))
			os.Exit(1)
		}
	}

	sink := workflow.NewChannelSink(cfg.Workflow.EventBuffer)
	ctx := workflow.WithEventSink(context.Background(), sink)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range sink.Events() {
			if event.NodeID != "" {
				fmt.Printf("%-16s node=%s\n", event.Type, event.NodeID)
			} else {
				fmt.Printf("%-16s\n", event.Type)
			}
		}
	}()

	out, err := workflow.NewInProcessRunner(logger).Run(ctx, wf, *input)
	sink.Close()
	<-done

	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("output: %v\n", out)
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

func printVersion() {
	fmt.Printf("flowforge %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`flowforge - multi-agent workflow toolkit

Usage:
  flowforge <command> [options]

Commands:
  serve     Start the demo host server
  run       Run a built-in workflow once and stream its events
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'run':
  --workflow <name>    Built-in workflow (chain, router, refine, parallel)
  --definition <path>  YAML workflow definition (text executors: uppercase,
                       lowercase, reverse, trim, echo)
  --input <text>       Workflow input

Examples:
  flowforge serve
  flowforge serve --config /etc/flowforge/config.yaml
  flowforge run --workflow refine --input "Fast workflows."
  flowforge run --definition pipeline.yaml --input "hello"
  flowforge health --addr http://localhost:8080`)
}

func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// buildCheckpointStore selects the checkpoint backend from config.
func buildCheckpointStore(cfg *config.Config, logger *zap.Logger) (workflow.CheckpointStore, error) {
	switch cfg.Checkpoint.Backend {
	case "memory":
		return workflow.NewMemoryCheckpointStore(), nil

	case "redis":
		client := newRedisClient(cfg.Redis)
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		logger.Info("using redis checkpoint backend", zap.String("addr", cfg.Redis.Addr))
		return workflow.NewRedisCheckpointStore(client, workflow.WithTTL(cfg.Checkpoint.TTL)), nil

	case "database":
		store, err := workflow.OpenCheckpointDatabase(cfg.Database.Driver, cfg.Database.DSN())
		if err != nil {
			return nil, err
		}
		logger.Info("using database checkpoint backend", zap.String("driver", cfg.Database.Driver))
		return store, nil

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := workflow.ConnectMongoCheckpointStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return nil, err
		}
		logger.Info("using mongodb checkpoint backend", zap.String("database", cfg.Mongo.Database))
		return store, nil

	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", cfg.Checkpoint.Backend)
	}
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
