package main

import (
	"context"
	"fmt"
	"github.com/ardanlabs/conf"
	"github.com/gorilla/handlers"
	"github.com/jellydator/ttlcache/v3"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tickboard/board/business/domain/auth"
	"github.com/tickboard/board/business/domain/board"
	"github.com/tickboard/board/entities"
	"github.com/tickboard/board/external/api"
	"github.com/tickboard/board/external/kafka"
	"github.com/tickboard/board/infrastructure/store/pebbledb"
	"github.com/tickboard/board/metrics"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"
)

const prefix = "TICKBOARD_SERVER"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	config := zap.NewProductionConfig()
	// this is just for sugar, to display a readable date instead of an epoch time
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("creating logger: %v", err)
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	// optional, the environment takes precedence
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env file: %v", err)
	}

	var cfg struct {
		ServerListenAddr  string        `conf:"default:0.0.0.0:3000"`
		MetricsListenAddr string        `conf:"default:0.0.0.0:9999"`
		MetricsNamespace  string        `conf:"default:tickboard"`
		StoreFolder       string        `conf:"default:store"`
		PublicKey         string        `conf:"required"`
		Ticks             []string      `conf:"default:Oil change;Restock;Cleaning"`
		DefaultMessage    string        `conf:"default:generic_message"`
		TimeZone          string        `conf:"default:America/Puerto_Rico"`
		DayStartHour      int           `conf:"default:6"`
		CacheTTL          time.Duration `conf:"default:5s"`
		Kafka             struct {
			Enabled          bool          `conf:"default:false"`
			BootstrapServers []string      `conf:"default:localhost:9092"`
			TickTopic        string        `conf:"default:tickboard-ticks"`
			PublishTimeout   time.Duration `conf:"default:5s"`
		}
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

	location, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("loading time zone [%s]: %v", cfg.TimeZone, err)
	}
	if cfg.DayStartHour < 0 || cfg.DayStartHour > 23 {
		return fmt.Errorf("invalid day start hour [%d]", cfg.DayStartHour)
	}

	publicKey, err := auth.ParsePublicKey(cfg.PublicKey)
	if err != nil {
		return fmt.Errorf("parsing public key: %v", err)
	}

	store, err := pebbledb.NewStore(cfg.StoreFolder, nil)
	if err != nil {
		return fmt.Errorf("creating store: %v", err)
	}
	defer store.Close()

	initialized, err := store.Initialize(pebbledb.Defaults{
		Message:   cfg.DefaultMessage,
		Active:    true,
		TickTypes: cfg.Ticks,
	})
	if err != nil {
		return fmt.Errorf("initializing store: %v", err)
	}
	sequence, err := store.GetSequence()
	if err != nil {
		return fmt.Errorf("getting sequence: %v", err)
	}
	sLogger.Infow("Store ready.", "initialized", initialized, "sequence", sequence)

	boardMetrics := metrics.NewBoardMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
	boardMetrics.SetSequence(sequence)

	var publisher board.TickPublisher
	if cfg.Kafka.Enabled {
		m := kprom.NewMetrics(cfg.MetricsNamespace,
			kprom.Registerer(prometheus.DefaultRegisterer),
			kprom.Gatherer(prometheus.DefaultGatherer))
		kcl, err := kgo.NewClient(
			kgo.WithHooks(m),
			kgo.SeedBrokers(cfg.Kafka.BootstrapServers...),
			kgo.DefaultProduceTopic(cfg.Kafka.TickTopic),
			kgo.ProducerBatchCompression(kgo.ZstdCompression()),
			kgo.WithLogger(kgo.BasicLogger(os.Stdout, kgo.LogLevelInfo, nil)),
		)
		if err != nil {
			return errors.Wrap(err, "creating kafka client")
		}
		defer kcl.Close()
		publisher = kafka.NewClient(kcl)
	}

	var caches board.Caches
	if cfg.CacheTTL > 0 {
		caches.TickTypes = ttlcache.New[string, []entities.TickType](
			ttlcache.WithTTL[string, []entities.TickType](cfg.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, []entities.TickType](),
		)
		caches.TickHistory = ttlcache.New[int64, []entities.Tick](
			ttlcache.WithTTL[int64, []entities.Tick](cfg.CacheTTL),
			ttlcache.WithDisableTouchOnHit[int64, []entities.Tick](),
		)
		go caches.TickTypes.Start()
		defer caches.TickTypes.Stop()
		go caches.TickHistory.Start()
		defer caches.TickHistory.Stop()
	}

	service := board.NewService(store, auth.NewVerifier(store, publicKey), publisher, caches, board.Config{
		Location:       location,
		DayStartHour:   cfg.DayStartHour,
		PublishTimeout: cfg.Kafka.PublishTimeout,
	}, boardMetrics, sLogger)

	router := api.NewRouter(api.NewHandler(service, sLogger))
	server := &http.Server{
		Addr:              cfg.ServerListenAddr,
		Handler:           handlers.CombinedLoggingHandler(os.Stdout, router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverError := make(chan error, 1)
	go func() {
		log.Printf("main: Starting server on [%s].", cfg.ServerListenAddr)
		serverError <- server.ListenAndServe()
	}()

	metricsError := make(chan error, 1)
	go func() {
		log.Printf("main: Starting metrics server on [%s].", cfg.MetricsListenAddr)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsError <- http.ListenAndServe(cfg.MetricsListenAddr, mux)
	}()

	select {
	case <-shutdown:
		log.Println("main: Received shutdown signal, shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// finish in flight mutations before the store is closed
		return server.Shutdown(ctx)
	case err := <-serverError:
		return fmt.Errorf("server error: %v", err)
	case err := <-metricsError:
		return fmt.Errorf("metrics server error: %v", err)
	}
}
