package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/commercekit/orderflow/internal/config"
	"github.com/commercekit/orderflow/internal/fraud"
	orchapp "github.com/commercekit/orderflow/internal/orchestrator/application"
	sagapg "github.com/commercekit/orderflow/internal/orchestrator/infrastructure/postgres"
	orderapp "github.com/commercekit/orderflow/internal/order/application"
	orderhttp "github.com/commercekit/orderflow/internal/order/infrastructure/http"
	orderpg "github.com/commercekit/orderflow/internal/order/infrastructure/postgres"
	paymentapp "github.com/commercekit/orderflow/internal/payment/application"
	paymentdomain "github.com/commercekit/orderflow/internal/payment/domain"
	"github.com/commercekit/orderflow/internal/payment/infrastructure/gateway"
	paymentpg "github.com/commercekit/orderflow/internal/payment/infrastructure/postgres"
	stockapp "github.com/commercekit/orderflow/internal/stock/application"
	stockhttp "github.com/commercekit/orderflow/internal/stock/infrastructure/http"
	stockpg "github.com/commercekit/orderflow/internal/stock/infrastructure/postgres"
	"github.com/commercekit/orderflow/pkg/eventbus"
	"github.com/commercekit/orderflow/pkg/logging"
	"github.com/commercekit/orderflow/pkg/metrics"
	"github.com/commercekit/orderflow/pkg/outbox"
	"github.com/commercekit/orderflow/pkg/shutdown"
	"github.com/commercekit/orderflow/pkg/tracing"
)

func main() {
	log := logging.New()
	cfg := config.Load("orderflow")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("tracing init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = tp.Shutdown(shutdownCtx)
	}()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("postgres connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	for _, ensure := range []func(context.Context, *pgxpool.Pool) error{
		stockpg.EnsureSchema, orderpg.EnsureSchema, paymentpg.EnsureSchema, sagapg.EnsureSchema,
	} {
		if err := ensure(ctx, pool); err != nil {
			log.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	publisher := eventbus.NewKafkaPublisher(log, cfg.KafkaBrokers)
	defer publisher.Close()

	ledger := stockapp.NewLedger(log, stockpg.NewRepository(log, pool), publisher, m.LedgerConflicts)

	var gw paymentdomain.Gateway
	if cfg.GatewayBaseURL != "" {
		gw = gateway.NewHTTPGateway(cfg.GatewayBaseURL)
	} else {
		log.Warn("PAYMENT_GATEWAY_URL unset, using simulated gateway")
		gw = gateway.NewSimulator(10_000_00)
	}
	payments := paymentapp.NewService(log, gw, paymentpg.NewRepository(pool))

	orders := orderpg.NewRepository(pool)
	fraudEval := fraud.NewEvaluator(log, fraud.DefaultConfig(), orders)
	coordinator := orchapp.NewCoordinator(log, orders, ledger, payments, sagapg.NewSagaLog(pool), fraudEval, m)
	svc := orderapp.NewService(log, coordinator, orders, orders)

	relay := outbox.NewRelay(log, orderpg.NewOutboxStore(pool),
		outbox.NewDispatcher(log, publisher, cfg.ServiceName), uuid.NewString())
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("outbox relay stopped", "err", err)
		}
	}()

	// Pick up sagas stranded by a previous instance.
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				svc.ResumeStuck(ctx, time.Minute, 50)
			}
		}
	}()

	r := chi.NewRouter()
	orderhttp.NewHandler(log, svc).Routes(r)
	stockhttp.NewHandler(log, ledger).Routes(r)
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("orderflow listening", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server failed", "err", err)
		os.Exit(1)
	}
	log.Info("orderflow stopped")
}
