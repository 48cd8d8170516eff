package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"PersonaCollector/internal/app"
	"PersonaCollector/internal/config"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/logging"
)

type options struct {
	Config       string   `long:"config" env:"PERSONA_COLLECTOR_CONFIG" description:"Path to the YAML configuration file"`
	Addr         string   `long:"addr" description:"HTTP listen address, overrides http.addr"`
	URL          string   `long:"url" description:"Run a single collection for this target URL and print the debug report"`
	Keywords     []string `long:"keyword" description:"Search keyword (repeatable)"`
	SecondaryURL string   `long:"secondary-url" description:"Secondary review page URL"`
	Competitors  []string `long:"competitor" description:"Competitor store URL (repeatable)"`
	Tier         string   `long:"tier" default:"basic" description:"Review tier: basic, premium, pro or enterprise"`
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	cfg := config.Load(opts.Config)
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			logger.Warn("close", "error", err)
		}
	}()

	if opts.URL == "" {
		if err := application.Serve(ctx); err != nil {
			logger.Error("application stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	orchestrator := application.Orchestrator()
	id, err := orchestrator.StartCollection(ctx, domain.CollectionRequest{
		TargetURL:      opts.URL,
		Keywords:       opts.Keywords,
		SecondaryURL:   opts.SecondaryURL,
		CompetitorURLs: opts.Competitors,
		Tier:           domain.Tier(opts.Tier),
	})
	if err != nil {
		logger.Error("start collection", "error", err)
		os.Exit(1)
	}
	orchestrator.Wait()

	info, err := orchestrator.GetDebugInfo(context.Background(), id)
	if err != nil {
		logger.Error("debug info", "job_id", id, "error", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		logger.Error("encode report", "error", err)
		os.Exit(1)
	}
}
