package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/voxalabs/storage-redundancy-engine/cmd/flags"
	"github.com/voxalabs/storage-redundancy-engine/config"
	"github.com/voxalabs/storage-redundancy-engine/cryptoutils"
	"github.com/voxalabs/storage-redundancy-engine/httpserver"
	"github.com/voxalabs/storage-redundancy-engine/redundancy"
	"github.com/voxalabs/storage-redundancy-engine/storage"
)

var EngineServiceLogFlag = flags.LogServiceFlagFn("storage-engine")

const (
	secretsTimeout    = 30 * time.Second
	initializeTimeout = 60 * time.Second
)

func main() {
	app := &cli.App{
		Name:  "storage-engine",
		Usage: "Serve the redundant storage facade API",
		Flags: append([]cli.Flag{
			flags.ConfigFlag,
			flags.ListenAddrFlag,
			flags.MasterKeyHexFlag,
			EngineServiceLogFlag,
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String(flags.ListenAddrFlag.Name)

			// Setup logger
			logger := flags.SetupLogger(cCtx)

			cfg, err := config.Load(cCtx.String(flags.ConfigFlag.Name))
			if err != nil {
				logger.Error("Failed to load config", "err", err)
				return err
			}
			if masterKey := cCtx.String(flags.MasterKeyHexFlag.Name); masterKey != "" {
				cfg.Encryption.MasterKey = masterKey
			}

			secretsCtx, cancelSecrets := context.WithTimeout(context.Background(), secretsTimeout)
			err = config.ResolveSecrets(secretsCtx, cfg, logger)
			cancelSecrets()
			if err != nil {
				logger.Error("Failed to resolve secrets", "err", err)
				return err
			}

			keyring, err := cryptoutils.NewStaticKeyringFromHex(cfg.Encryption.MasterKey)
			if err != nil {
				logger.Error("Failed to build keyring", "err", err)
				return err
			}

			db, err := storage.OpenDB(cfg.Index.Path)
			if err != nil {
				logger.Error("Failed to open index database", "err", err, "path", cfg.Index.Path)
				return err
			}
			defer db.Close()

			index, err := redundancy.NewReplicaIndex(db)
			if err != nil {
				logger.Error("Failed to prepare replica index", "err", err)
				return err
			}

			factory := storage.NewProviderFactory(logger, db)
			providers, err := factory.ProvidersFor(cfg.Providers)
			if err != nil {
				logger.Error("Failed to build providers", "err", err)
				return err
			}

			level, err := cfg.Level()
			if err != nil {
				logger.Error("Invalid redundancy level", "err", err)
				return err
			}
			primary, err := cfg.PrimaryID()
			if err != nil {
				logger.Error("Invalid primary provider", "err", err)
				return err
			}

			// The bus and collector are shared between the monitor and the
			// manager so subscribers see health transitions and metrics
			// cover both probe and operation outcomes.
			bus := redundancy.NewBus(logger)
			collector := redundancy.NewCollector()
			monitor := redundancy.NewHealthMonitor(redundancy.MonitorConfig{
				CheckInterval: cfg.Health.Interval.Std(),
				ProbeTimeout:  cfg.Health.ProbeTimeout.Std(),
				Bus:           bus,
				Collector:     collector,
				Log:           logger,
			})

			manager, err := redundancy.NewManager(redundancy.ManagerConfig{
				Providers:   providers,
				Primary:     primary,
				Level:       level,
				ActiveKeyID: cfg.Encryption.ActiveKeyID,
				Cipher:      cryptoutils.NewBlobCipher(keyring),
				Monitor:     monitor,
				Index:       index,
				Bus:         bus,
				Collector:   collector,
				Timeouts:    cfg.EngineTimeouts(),
				Log:         logger,
			})
			if err != nil {
				logger.Error("Failed to create redundancy manager", "err", err)
				return err
			}

			initCtx, cancelInit := context.WithTimeout(context.Background(), initializeTimeout)
			err = manager.Initialize(initCtx)
			cancelInit()
			if err != nil {
				if !cfg.AllowDegradedStart {
					logger.Error("Failed to initialize providers", "err", err)
					return err
				}
				logger.Warn("Starting degraded, some providers failed to initialize", "err", err)
			}

			monitorCtx, stopMonitor := context.WithCancel(context.Background())
			defer stopMonitor()
			go monitor.Run(monitorCtx)

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), httpserver.NewHandler(manager, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			// Shutdown server gracefully
			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
