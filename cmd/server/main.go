// Command server runs the report engine: HTTP API, worker pool, and the
// AI authority, wired together from environment configuration.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/woninglens/woninglens/internal/ai"
	"github.com/woninglens/woninglens/internal/enrichment"
	"github.com/woninglens/woninglens/internal/governance"
	"github.com/woninglens/woninglens/internal/infrastructure/api/rest"
	"github.com/woninglens/woninglens/internal/infrastructure/config"
	"github.com/woninglens/woninglens/internal/infrastructure/logger"
	"github.com/woninglens/woninglens/internal/infrastructure/monitoring"
	"github.com/woninglens/woninglens/internal/infrastructure/storage"
	"github.com/woninglens/woninglens/internal/infrastructure/websocket"
	"github.com/woninglens/woninglens/internal/queue"
	"github.com/woninglens/woninglens/internal/runstore"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	govState := governance.NewStateManager(cfg.Environment)
	policy := govState.EffectivePolicy()

	caps := ai.NewCapabilityManager()
	authority := ai.NewAuthority(func() ai.Credentials {
		return ai.Credentials{
			OpenAIKey:     cfg.OpenAIKey,
			GeminiKey:     cfg.GeminiKey,
			AnthropicKey:  cfg.AnthropicKey,
			OllamaBaseURL: cfg.OllamaBaseURL,
			OllamaTimeout: cfg.OllamaTimeout,
			Models: map[string]string{
				"openai":    cfg.OpenAIModel,
				"gemini":    cfg.GeminiModel,
				"anthropic": cfg.AnthropicModel,
				"ollama":    cfg.OllamaModel,
			},
		}
	}, caps, log)
	guard := ai.NewOllamaGuard(cfg.OllamaBaseURL, log)

	enricher, err := enrichment.NewEnricher(log)
	if err != nil {
		log.Fatal().Err(err).Msg("building enricher failed")
	}

	store := runstore.NewStore()
	if cfg.DatabaseDSN != "" {
		bunStore := storage.NewBunStore(cfg.DatabaseDSN)
		if err := bunStore.InitSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("initializing schema failed")
		}
		defer bunStore.Close()
		store.WithMirror(bunStore)
	}

	hub := websocket.NewHub(log)
	metrics := monitoring.NewMetricsCollector()
	observers := monitoring.NewObserverManager()
	observers.AddObserver(metrics)
	observers.AddObserver(websocket.NewSocketObserver(hub))

	runner := queue.NewPipelineRunner(store, authority, enricher, policy, observers, defaultPreferences(), cfg.TestMode, log)
	pool := queue.NewPool(store, runner, cfg.Workers, cfg.ZombieTTL, log)
	pool.Start()
	defer pool.Stop()

	server := rest.NewServer(store, pool, authority, guard, govState, metrics, hub, log)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("environment", string(cfg.Environment)).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	guard.Cleanup(shutdownCtx, false)
}

// defaultPreferences is the built-in persona preference model, used when a
// run carries no explicit preferences.
func defaultPreferences() enrichment.Preferences {
	return enrichment.Preferences{
		"marcel": {
			Priorities:       []string{"Garage", "Zonnepanelen", "Glasvezel", "Warmtepomp"},
			HiddenPriorities: []string{"Solar"},
		},
		"petra": {
			Priorities:       []string{"Tuin", "Open keuken", "Lichtinval", "Visgraat"},
			HiddenPriorities: []string{"Jaren 30"},
		},
	}
}
