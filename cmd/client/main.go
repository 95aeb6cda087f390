package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blukai/pewpew/internal/gameclient"
	"github.com/blukai/pewpew/internal/logging"
	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"
)

type Config struct {
	ServerAddr     string        `envconfig:"SERVER_ADDR" default:"127.0.0.1:8888"`
	MaxFrameSize   uint32        `envconfig:"MAX_FRAME_SIZE" default:"1048576"`
	ReportInterval time.Duration `envconfig:"REPORT_INTERVAL" default:"1s"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("pewpew", config); err != nil {
		return nil, err
	}
	if config.ReportInterval <= 0 {
		return nil, fmt.Errorf("invalid report interval: %s", config.ReportInterval)
	}
	return config, nil
}

func report(logger *log.Logger, gc *gameclient.GameClient) {
	b := gc.GetBoard()
	if b == nil {
		logger.Info().Msg("no snapshot yet")
		return
	}

	logger.Info().
		Uint64("received", gc.Received()).
		Uint32("time", uint32(b.Time)).
		Int("ships", len(b.Ships)).
		Msg("board")
	for _, player := range b.Players() {
		ship := b.Ships[player]
		logger.Debug().
			Int("player", int(player)).
			Int32("x", ship.Position.X).
			Int32("y", ship.Position.Y).
			Int32("z", ship.Position.Z).
			Msg("ship")
	}
}

func erringMain() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	logger := logging.Console(config.LogLevel)

	gameClient, err := gameclient.NewGameClient(
		"tcp4", config.ServerAddr, logger,
		gameclient.WithMaxFrameSize(config.MaxFrameSize),
	)
	if err != nil {
		return fmt.Errorf("could not construct game client: %w", err)
	}
	logger.Info().Msgf("connected to %s from %s", config.ServerAddr, gameClient.LocalAddr())

	wg := new(sync.WaitGroup)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg.Add(1)
	var gameClientRunErr error
	go func() {
		defer wg.Done()
		defer cancel()
		gameClientRunErr = gameClient.Run(ctx)
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(config.ReportInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case sig := <-signalChan:
			logger.Info().Msgf("received %+v signal", sig)
			break loop
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			report(logger, gameClient)
		}
	}

	cancel()
	wg.Wait()
	if gameClientRunErr != nil {
		return fmt.Errorf("game client run failed: %w", gameClientRunErr)
	}

	return nil
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "fucky wucky! %v\n", err)
		os.Exit(42)
	}
}
