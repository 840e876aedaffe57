package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vantagegraph/vantage/internal/analyst"
	"github.com/vantagegraph/vantage/internal/arbitrage"
	"github.com/vantagegraph/vantage/internal/archive"
	"github.com/vantagegraph/vantage/internal/batch"
	"github.com/vantagegraph/vantage/internal/classifier"
	"github.com/vantagegraph/vantage/internal/crypto"
	"github.com/vantagegraph/vantage/internal/domain"
	"github.com/vantagegraph/vantage/internal/ingest"
	"github.com/vantagegraph/vantage/internal/notify"
	"github.com/vantagegraph/vantage/internal/platform/kalshi"
	"github.com/vantagegraph/vantage/internal/platform/polymarket"
	"github.com/vantagegraph/vantage/internal/pricing"
	"github.com/vantagegraph/vantage/internal/scenario"
	"github.com/vantagegraph/vantage/internal/server"
	"github.com/vantagegraph/vantage/internal/server/handler"
	"github.com/vantagegraph/vantage/internal/server/ws"
)

// FullMode starts every subsystem: both ingestion sessions, the batch writer,
// the arbitrage scanner, the retention archiver, a one-shot classifier run,
// the scenario engine, and, when the server is enabled, the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	resolver := a.newResolver(deps)
	model := a.newAnalyst(deps)

	if err := a.startIngestion(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	a.startScanner(ctx, g, deps, resolver)
	a.startArchive(ctx, g, deps)

	// One classification pass at startup so the graph is populated before
	// the first dashboard load. Scheduled reruns go through classify mode.
	cls := a.newClassifier(deps, resolver, model)
	go func() {
		stats, err := cls.Run(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "full mode: classifier run failed",
				slog.String("error", err.Error()),
			)
			return
		}
		a.logger.InfoContext(ctx, "full mode: classifier run finished",
			slog.Int("pairs", stats.Pairs),
			slog.Int("classified", stats.Classified),
		)
	}()

	engine := a.newScenarioEngine(deps, resolver, model)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, resolver, engine)
	}
	a.startReportNotifier(ctx, g, deps)

	return g.Wait()
}

// IngestMode runs only the venue sessions and the batch writer.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startIngestion(ctx, g, deps); err != nil {
		return fmt.Errorf("ingest mode: %w", err)
	}

	return g.Wait()
}

// ClassifyMode runs a single classification pass over the catalog and exits.
func (a *App) ClassifyMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting classify mode")

	resolver := a.newResolver(deps)
	cls := a.newClassifier(deps, resolver, a.newAnalyst(deps))

	stats, err := cls.Run(ctx)
	if err != nil {
		return fmt.Errorf("classify mode: %w", err)
	}

	a.logger.InfoContext(ctx, "classification pass finished",
		slog.Int("pairs", stats.Pairs),
		slog.Int("classified", stats.Classified),
		slog.Int("skipped", stats.Skipped),
		slog.Int("hubs", len(stats.Hubs)),
	)
	return nil
}

// ServerMode serves the API and analytics over already-ingested data. No
// venue sessions are started.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	resolver := a.newResolver(deps)
	engine := a.newScenarioEngine(deps, resolver, a.newAnalyst(deps))

	a.startScanner(ctx, g, deps, resolver)
	a.startHTTPServer(ctx, g, deps, resolver, engine)
	a.startReportNotifier(ctx, g, deps)

	return g.Wait()
}

func (a *App) newResolver(deps *Dependencies) *pricing.Resolver {
	return pricing.NewResolver(deps.Quotes, deps.Probs, a.cfg.DemoProbs)
}

func (a *App) newAnalyst(deps *Dependencies) *analyst.Client {
	return analyst.New(analyst.Config{
		Endpoint: a.cfg.Analyst.Endpoint,
		APIKey:   a.cfg.Analyst.ApiKey,
		Model:    a.cfg.Analyst.Model,
	}, deps.RateLimiter)
}

func (a *App) newClassifier(deps *Dependencies, resolver *pricing.Resolver, model *analyst.Client) *classifier.Classifier {
	return classifier.New(classifier.Config{
		Catalog:                   deps.Markets,
		Edges:                     deps.Relationships,
		Resolver:                  resolver,
		Analyst:                   model,
		Locks:                     deps.Locks,
		Concurrency:               a.cfg.Classifier.Concurrency,
		DivergenceThresholdPct:    a.cfg.Classifier.DivergenceThresholdPct,
		ArbitrageFlagThresholdPct: a.cfg.Classifier.ArbitrageFlagThresholdPct,
		HubLinkThreshold:          a.cfg.Classifier.HubLinkThreshold,
		Logger:                    a.logger,
	})
}

func (a *App) newScenarioEngine(deps *Dependencies, resolver *pricing.Resolver, model *analyst.Client) *scenario.Engine {
	return scenario.New(scenario.Config{
		Reports:           deps.Scenarios,
		Relationships:     deps.Relationships,
		Catalog:           deps.Markets,
		Resolver:          resolver,
		Analyst:           model,
		Bus:               deps.Bus,
		MaxDepth:          a.cfg.Scenario.MaxDepth,
		MinPathConfidence: a.cfg.Scenario.MinPathConfidence,
		Logger:            a.logger,
	})
}

// startIngestion wires the batch writer and one supervised session per venue.
// Subscription targets come from config when set, otherwise from the catalog.
func (a *App) startIngestion(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	writer := batch.NewWriter(
		deps.Quotes, deps.Probs, deps.Bus,
		a.cfg.Batch.Size, a.cfg.Batch.FlushInterval.Duration, a.logger,
	)
	g.Go(func() error {
		return writer.Run(ctx)
	})

	markets, err := deps.Markets.List(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("start ingestion: load catalog: %w", err)
	}

	namesA := make(map[string]string)
	namesB := make(map[string]string)
	var assetIDs, tickers []string
	for _, m := range markets {
		if m.HasPolymarket() {
			namesA[m.PolymarketID] = m.PropositionText
			assetIDs = append(assetIDs, m.PolymarketID)
		}
		if m.HasKalshi() {
			namesB[m.KalshiTicker] = m.PropositionText
			tickers = append(tickers, m.KalshiTicker)
		}
	}
	if len(a.cfg.ExchangeA.AssetIDs) > 0 {
		assetIDs = a.cfg.ExchangeA.AssetIDs
	}
	if len(a.cfg.ExchangeB.Tickers) > 0 {
		tickers = a.cfg.ExchangeB.Tickers
	}

	micro := ingest.NewMicroCache()

	if len(assetIDs) > 0 {
		wsA := polymarket.NewWSClient(a.cfg.ExchangeA.WsHost, a.cfg.ExchangeA.ApiKey, assetIDs, a.logger)
		ingest.NewPolymarketNormalizer(micro, writer, namesA, a.logger).Bind(wsA)
		sessA := ingest.NewSession("polymarket", wsA,
			a.cfg.Reconnect.BaseDelay.Duration, a.cfg.Reconnect.MaxDelay.Duration, a.logger)
		g.Go(func() error {
			return sessA.Run(ctx)
		})
	} else {
		a.logger.WarnContext(ctx, "start ingestion: no polymarket assets to subscribe, session skipped")
	}

	if len(tickers) > 0 {
		key, err := crypto.LoadSigningKey(crypto.KeyConfig{
			PrivateKeyBase64: a.cfg.ExchangeB.PrivateKeyBase64,
			EncryptedKeyPath: a.cfg.ExchangeB.EncryptedKeyPath,
			KeyPassword:      a.cfg.ExchangeB.KeyPassword,
		})
		if err != nil {
			return fmt.Errorf("start ingestion: kalshi signing key: %w", err)
		}
		signer := kalshi.NewSigner(a.cfg.ExchangeB.ApiKey, key)
		wsB := kalshi.NewWSClient(a.cfg.ExchangeB.WsURL, signer, tickers, a.logger)
		ingest.NewKalshiNormalizer(micro, writer, namesB, a.logger).Bind(wsB)
		sessB := ingest.NewSession("kalshi", wsB,
			a.cfg.Reconnect.BaseDelay.Duration, a.cfg.Reconnect.MaxDelay.Duration, a.logger)
		g.Go(func() error {
			return sessB.Run(ctx)
		})
	} else {
		a.logger.WarnContext(ctx, "start ingestion: no kalshi tickers to subscribe, session skipped")
	}

	return nil
}

func (a *App) startScanner(ctx context.Context, g *errgroup.Group, deps *Dependencies, resolver *pricing.Resolver) {
	scanner := arbitrage.NewScanner(arbitrage.ScannerConfig{
		Relationships:         deps.Relationships,
		Catalog:               deps.Markets,
		Resolver:              resolver,
		Alerts:                deps.Alerts,
		Notifier:              deps.Notifier,
		Bus:                   deps.Bus,
		PollInterval:          a.cfg.Arbitrage.PollInterval.Duration,
		SpreadThresholdPct:    a.cfg.Arbitrage.SpreadThresholdPct,
		LiquidityThresholdUSD: a.cfg.Arbitrage.LiquidityThresholdUSD,
		SuppressWindow:        a.cfg.Arbitrage.SuppressWindow.Duration,
		Logger:                a.logger,
	})
	g.Go(func() error {
		return scanner.Run(ctx)
	})
}

func (a *App) startArchive(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	job := archive.NewJob(deps.Archiver, a.cfg.Archive.RetentionDays, a.cfg.Archive.Interval.Duration, a.logger)
	g.Go(func() error {
		return job.Run(ctx)
	})
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled, with a grace period for in-flight scenario analyses.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, resolver *pricing.Resolver, engine *scenario.Engine) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.Bus, a.logger, startedAt)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(startedAt),
		Graph:    handler.NewGraphHandler(deps.Markets, deps.Relationships, resolver, a.cfg.Classifier.HubLinkThreshold, a.logger),
		Scenario: handler.NewScenarioHandler(engine, deps.Scenarios, a.logger),
		Alerts:   handler.NewAlertHandler(deps.Alerts, a.logger),
		Markets:  handler.NewMarketHandler(deps.Markets, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.ApiKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startReportNotifier forwards completed scenario reports from the signal bus
// to the configured notification channels.
func (a *App) startReportNotifier(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		ch, err := deps.Bus.Subscribe(ctx, domain.ChanReports)
		if err != nil {
			a.logger.WarnContext(ctx, "report notifier: subscribe failed",
				slog.String("error", err.Error()),
			)
			return nil
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case data, ok := <-ch:
				if !ok {
					return nil
				}
				var ev struct {
					Query         string   `json:"query"`
					Status        string   `json:"status"`
					TriggerMarket string   `json:"trigger_market"`
					Direction     string   `json:"direction"`
					AffectedNodes []string `json:"affected_nodes"`
				}
				if err := json.Unmarshal(data, &ev); err != nil || ev.Status != string(domain.ReportComplete) {
					continue
				}
				msg := notify.ScenarioMessage(ev.Query, ev.TriggerMarket, ev.Direction, ev.AffectedNodes)
				if err := deps.Notifier.Notify(ctx, msg); err != nil {
					a.logger.WarnContext(ctx, "report notifier: send failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}
