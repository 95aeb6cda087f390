package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blukai/pewpew/internal/board"
	"github.com/blukai/pewpew/internal/gameserver"
	"github.com/blukai/pewpew/internal/logging"
	"github.com/blukai/pewpew/internal/metrics"
	"github.com/blukai/pewpew/internal/round"
	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	ListenAddr        string        `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8888"`
	BroadcastInterval time.Duration `envconfig:"BROADCAST_INTERVAL" default:"50ms"`
	OutboxSize        int           `envconfig:"OUTBOX_SIZE" default:"16"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s"`
	AcceptRate        float64       `envconfig:"ACCEPT_RATE" default:"0"`
	AcceptBurst       int           `envconfig:"ACCEPT_BURST" default:"16"`
	MaxConnections    int           `envconfig:"MAX_CONNECTIONS" default:"0"`
	MetricsAddr       string        `envconfig:"METRICS_ADDR"`
	Ships             int           `envconfig:"SHIPS" default:"2"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("pewpew", config); err != nil {
		return nil, err
	}
	if config.Ships < 0 || config.Ships > 256 {
		return nil, fmt.Errorf("invalid number of ships: %d", config.Ships)
	}
	return config, nil
}

func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func erringMain() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	logger := logging.Console(config.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := round.New(nil, logger)
	for i := 0; i < config.Ships; i++ {
		r.AddShip(board.PlayerID(i), board.ShipAtOrigin())
	}

	gameServer, err := gameserver.NewGameServer(
		"tcp4", config.ListenAddr, r, logger,
		gameserver.WithInterval(config.BroadcastInterval),
		gameserver.WithOutboxSize(config.OutboxSize),
		gameserver.WithWriteTimeout(config.WriteTimeout),
		gameserver.WithAcceptRate(config.AcceptRate, config.AcceptBurst),
		gameserver.WithMaxConnections(config.MaxConnections),
		gameserver.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return fmt.Errorf("could not construct game server: %w", err)
	}
	logger.Info().Msgf("started game server on %s", gameServer.Addr())

	wg := new(sync.WaitGroup)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Run(ctx)
	}()

	var mu sync.Mutex
	var runErr error
	fail := func(err error) {
		mu.Lock()
		runErr = multierror.Append(runErr, err)
		mu.Unlock()
		cancel()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gameServer.Run(ctx); err != nil {
			fail(fmt.Errorf("game server run failed: %w", err))
		}
	}()

	if config.MetricsAddr != "" {
		metricsServer := newMetricsServer(config.MetricsAddr, reg)
		logger.Info().Msgf("serving metrics on %s", config.MetricsAddr)

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := metricsServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				fail(fmt.Errorf("metrics server failed: %w", err))
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("could not shut down metrics server")
			}
		}()
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-signalChan:
		logger.Info().Msgf("received %+v signal", sig)
	case <-ctx.Done():
	}

	cancel()
	wg.Wait()

	return runErr
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "fucky wucky! %v\n", err)
		os.Exit(42)
	}
}
