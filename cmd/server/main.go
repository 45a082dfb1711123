// Command server is the composition root: it loads configuration, opens
// the trade store, wires a per-user broker resolver through the vault,
// starts the lifecycle engine and background scheduler, and serves the
// ambient /healthz and /metrics surface, following the standard wiring
// order (logger, config, store, scheduler, HTTP server, signal-driven
// graceful shutdown).
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleaf/optrader/internal/broker"
	"github.com/quantleaf/optrader/internal/config"
	"github.com/quantleaf/optrader/internal/healthcheck"
	"github.com/quantleaf/optrader/internal/httpapi"
	"github.com/quantleaf/optrader/internal/scheduler"
	"github.com/quantleaf/optrader/internal/trading"
	"github.com/quantleaf/optrader/internal/tradestore"
	"github.com/quantleaf/optrader/internal/vault"
	"github.com/quantleaf/optrader/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting optrader")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := tradestore.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open trade store")
	}
	defer store.Close()

	v := vault.New()
	brokerFor := newBrokerResolver(store, v, cfg, log)

	engine := trading.NewEngine(store, engineBrokerFor(brokerFor), log)

	sched := scheduler.New(log)
	if err := registerJobs(sched, store, engine, brokerFor, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("failed to register background jobs")
	}
	sched.Start()
	defer sched.Stop(context.Background())

	healthJob := healthcheck.New(store, log)
	if err := sched.Register(cfg.HealthCheckSchedule, healthJob, cfg.JobTimeout); err != nil {
		log.Fatal().Err(err).Msg("failed to register health check job")
	}

	addr := ":" + strconv.Itoa(cfg.Port)
	httpServer := httpapi.New(addr, healthJob, log)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("ambient http surface failed")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("optrader started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ambient http surface forced to shutdown")
	}

	log.Info().Msg("optrader stopped")
}

// newBrokerResolver builds a scheduler.BrokerFor that loads a user's
// settings row, decrypts the token matching their configured broker mode,
// and constructs a Client bound to the right environment. Clients are not
// cached across calls: job runs are infrequent enough that the cost of
// rebuilding a rate-limited HTTP client per call is negligible next to the
// cost of a stale, leaked one outliving a credential rotation.
func newBrokerResolver(store *tradestore.Store, v *vault.Vault, cfg *config.Config, log zerolog.Logger) func(username string) (*broker.Client, error) {
	return func(username string) (*broker.Client, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		settings, err := store.GetUserSettings(ctx, username)
		if err != nil {
			return nil, err
		}

		env := broker.Sandbox
		encrypted := settings.EncryptedSandboxToken
		if settings.BrokerMode == trading.ModeLive {
			env = broker.Live
			encrypted = settings.EncryptedLiveToken
		}

		token, err := v.Decrypt(string(encrypted))
		if err != nil {
			return nil, err
		}

		return broker.New(broker.Config{
			Environment: env,
			AccessToken: token,
			AccountID:   settings.BrokerAccountID,
			Logger:      log,
		}), nil
	}
}

// engineBrokerFor adapts the composition root's concrete broker resolver
// to trading.BrokerFor's narrower Broker interface, so the lifecycle
// engine never sees the full *broker.Client surface it doesn't need.
func engineBrokerFor(resolve func(username string) (*broker.Client, error)) trading.BrokerFor {
	return func(username string) (trading.Broker, error) {
		return resolve(username)
	}
}

func registerJobs(sched *scheduler.Scheduler, store *tradestore.Store, engine *trading.Engine, brokerFor scheduler.BrokerFor, cfg *config.Config, log zerolog.Logger) error {
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.LivePricePollSchedule, scheduler.NewLivePricePollJob(store, engine, brokerFor, log)},
		{cfg.PreSessionSchedule, scheduler.NewPreSessionBookendJob(store, engine, brokerFor, log)},
		{cfg.PostSessionSchedule, scheduler.NewPostSessionBookendJob(store, engine, brokerFor, log)},
		{cfg.OrphanGuardSchedule, scheduler.NewOrphanGuardJob(store, brokerFor, log)},
		{cfg.EODReconcileSchedule, scheduler.NewEODReconciliationJob(store, engine, log)},
	}
	for _, j := range jobs {
		if err := sched.Register(j.schedule, j.job, cfg.JobTimeout); err != nil {
			return err
		}
	}
	return nil
}
