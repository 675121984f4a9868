package main

import (
	"context"
	"fmt"
	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/tickboard/board/external/display"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const prefix = "TICKBOARD_DISPLAY"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("creating logger: %v", err)
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env file: %v", err)
	}

	var cfg struct {
		ServerURL      string        `conf:"default:http://localhost:3000"`
		PollInterval   time.Duration `conf:"default:5s"`
		RequestTimeout time.Duration `conf:"default:3s"`
	}

	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %v", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %v", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %v", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %v", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	if cfg.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval [%s]", cfg.PollInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := display.NewPoller(cfg.ServerURL, cfg.RequestTimeout, sLogger)
	pollerError := make(chan error, 1)
	go func() {
		log.Printf("main: Polling [%s] every [%s].", cfg.ServerURL, cfg.PollInterval)
		pollerError <- poller.Run(ctx, cfg.PollInterval)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case <-shutdown:
		log.Println("main: Received shutdown signal, shutting down...")
		cancel()
		<-pollerError
		return nil
	case err := <-pollerError:
		return fmt.Errorf("poller error: %v", err)
	}
}
