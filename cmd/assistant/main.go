package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Mercy2112/ai-voice-assistant/pkg/assistant"
	"github.com/Mercy2112/ai-voice-assistant/pkg/callstore"
	"github.com/Mercy2112/ai-voice-assistant/pkg/configutil"
	"github.com/Mercy2112/ai-voice-assistant/pkg/httpapi"
	"github.com/Mercy2112/ai-voice-assistant/pkg/logging"
	"github.com/Mercy2112/ai-voice-assistant/pkg/pipeline"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
	"github.com/Mercy2112/ai-voice-assistant/pkg/transports"
	mocktransport "github.com/Mercy2112/ai-voice-assistant/pkg/transports/mock"
	twiliotransport "github.com/Mercy2112/ai-voice-assistant/pkg/transports/twilio"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := assistant.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	log := logging.InitLogger(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg assistant.Config, configPath string, log *slog.Logger) error {
	agent := assistant.NewAgentSource(cfg.Agent)
	if err := agent.Watch(configPath, log); err != nil {
		log.Warn("config_watch_failed", "path", configPath, "error", err)
	}

	built, err := buildTransport(cfg, agent, log)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	var (
		onEnd   []pipeline.EndHook
		archive httpapi.Archive
	)
	if path := strings.TrimSpace(cfg.Storage.Path); path != "" {
		store, err := callstore.Open(path)
		if err != nil {
			return fmt.Errorf("call store: %w", err)
		}
		defer store.Close()
		onEnd = append(onEnd, store.Hook(resilience.NewRetryPolicy(cfg.Storage.Retries, 0), log))
		archive = store
	}

	eng, err := assistant.NewEngine(ctx, assistant.Options{
		Config:    cfg,
		Transport: built.transport,
		Agent:     agent.Get,
		OnEnd:     onEnd,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}

	handler := httpapi.NewHandler(httpapi.Options{
		Registry:   eng.Registry(),
		Health:     eng.Health,
		Caller:     built.caller,
		Archive:    archive,
		FromNumber: built.fromNumber,
		Logger:     log,
	})
	srv := httpapi.NewServer(handler, log, built.mounts...)
	log.Info("http_listening", "addr", cfg.Server.Addr)
	serveErr := httpapi.Serve(ctx, srv, cfg.Server.Addr)
	if err := eng.Stop(); err != nil {
		log.Warn("drain_incomplete", "error", err)
	}
	return serveErr
}

type builtTransport struct {
	transport  transports.Transport
	caller     httpapi.Caller
	mounts     []httpapi.Mounter
	fromNumber string
}

func buildTransport(cfg assistant.Config, agent *assistant.AgentSource, log *slog.Logger) (builtTransport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transports.Provider)) {
	case "twilio":
		var tc twiliotransport.Config
		schema := configutil.Schema{
			Required: []string{"account_sid", "auth_token"},
			Optional: configutil.Keys(tc),
		}
		if err := configutil.Decode(cfg.Transports.Settings, schema, &tc); err != nil {
			return builtTransport{}, err
		}
		if tc.ServerAddr == "" {
			tc.ServerAddr = cfg.Server.Addr
		}
		tr := twiliotransport.New(tc,
			twiliotransport.WithGreeting(func() string { return agent.Get().Greeting }),
			twiliotransport.WithLogger(log),
		)
		return builtTransport{
			transport:  tr,
			caller:     tr,
			mounts:     []httpapi.Mounter{tr},
			fromNumber: tc.FromNumber,
		}, nil
	case "mock":
		return builtTransport{transport: mocktransport.New()}, nil
	default:
		return builtTransport{}, fmt.Errorf("unknown transport provider: %s", cfg.Transports.Provider)
	}
}
