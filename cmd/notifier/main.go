package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/commercekit/orderflow/internal/config"
	"github.com/commercekit/orderflow/internal/notification"
	orderdomain "github.com/commercekit/orderflow/internal/order/domain"
	orderpg "github.com/commercekit/orderflow/internal/order/infrastructure/postgres"
	"github.com/commercekit/orderflow/pkg/eventbus"
	"github.com/commercekit/orderflow/pkg/idempotency"
	"github.com/commercekit/orderflow/pkg/logging"
	"github.com/commercekit/orderflow/pkg/metrics"
	"github.com/commercekit/orderflow/pkg/shutdown"
	"github.com/commercekit/orderflow/pkg/tracing"
)

const consumerGroup = "notifier"

// orderDirectory resolves a customer contact by reading the order back
// from the shared orders store.
type orderDirectory struct {
	orders *orderpg.Repository
}

func (d orderDirectory) ContactFor(ctx context.Context, orderID string) (string, error) {
	o, err := d.orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	return o.Contact, nil
}

func main() {
	log := logging.New()
	cfg := config.Load("notifier")

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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewRedisStore(rdb, 24*time.Hour)

	m := metrics.New(prometheus.DefaultRegisterer)
	dispatcher := notification.NewDispatcher(log,
		orderDirectory{orders: orderpg.NewRepository(pool)},
		notification.NewLogProvider(log),
		m.Notifications,
	)

	consumers := []*eventbus.KafkaConsumer{
		eventbus.NewKafkaConsumer(log, cfg.KafkaBrokers, orderdomain.TopicOrderConfirmed, consumerGroup, dispatcher.HandleConfirmed, idem),
		eventbus.NewKafkaConsumer(log, cfg.KafkaBrokers, orderdomain.TopicOrderRejected, consumerGroup, dispatcher.HandleRejected, idem),
	}

	var wg sync.WaitGroup
	for _, c := range consumers {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				log.Error("consumer stopped", "err", err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("notifier listening", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server failed", "err", err)
	}
	wg.Wait()
	log.Info("notifier stopped")
}
