package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matchd/config"
	"matchd/domain/book"
	"matchd/infra/kafka"
	"matchd/infra/outbox"
	"matchd/infra/wal/entry"
	"matchd/jobs/broadcaster"
	"matchd/logger"
	"matchd/metrics"
	"matchd/service"
	"matchd/snapshot"
	"matchd/transport"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	met := metrics.New(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------- Durability ----------------

	journal, err := entry.Open(entry.Config{
		Dir:             cfg.Journal.Dir,
		SegmentSize:     cfg.Journal.SegmentSize,
		SegmentDuration: cfg.Journal.SegmentDuration,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("journal init failed")
	}
	defer journal.Close()

	ob, err := outbox.Open(cfg.Outbox.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("outbox init failed")
	}
	defer ob.Close()

	// ---------------- Transport & trade feed ----------------

	srv, err := transport.NewUDP(cfg.Listen.Addr, cfg.Listen.FeedAddr, log)
	if err != nil {
		log.Fatal().Err(err).Msg("listen failed")
	}
	defer srv.Close()

	var trades service.TradePublisher
	if len(cfg.Kafka.Brokers) > 0 {
		feed := kafka.NewTradeFeed(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic, nil)
		defer feed.Close()
		trades = feed
	}

	// ---------------- Engine ----------------

	mem := book.NewArena(cfg.Engine.OrderCapacity, cfg.Engine.ClientCapacity)
	eng := service.New(log, met, mem, srv, journal, ob, trades)

	// ---------------- Recovery ----------------
	// Snapshot first, then journal records past it. Must finish before
	// any traffic is accepted.

	snap, err := snapshot.Load(cfg.Snapshot.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("snapshot load failed")
	}
	eng.Restore(snap)

	if err := eng.ReplayJournal(cfg.Journal.Dir); err != nil {
		log.Fatal().Err(err).Msg("journal replay failed")
	}

	// ---------------- Background jobs ----------------

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := broadcaster.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatal().Err(err).Msg("kafka producer init failed")
		}
		bc := broadcaster.New(ob, producer, cfg.Kafka.IndicationsTopic, cfg.Kafka.DrainInterval, log)
		defer bc.Close()
		bc.Start(ctx)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Metrics.Addr, nil); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	// ---------------- Serve ----------------

	snapW := &snapshot.Writer{Dir: cfg.Snapshot.Dir}
	if err := srv.Serve(ctx, eng, snapW, cfg.Snapshot.Interval, cfg.Listen.IdleTimeout); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("serve failed")
	}

	// Final snapshot on clean shutdown keeps restart replay short.
	if err := eng.WriteSnapshot(snapW); err != nil {
		log.Error().Err(err).Msg("shutdown snapshot failed")
	}
	log.Info().Msg("stopped")
}
