package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/voxalabs/storage-redundancy-engine/backup"
	"github.com/voxalabs/storage-redundancy-engine/cmd/flags"
	"github.com/voxalabs/storage-redundancy-engine/config"
	"github.com/voxalabs/storage-redundancy-engine/cryptoutils"
	"github.com/voxalabs/storage-redundancy-engine/redundancy"
	"github.com/voxalabs/storage-redundancy-engine/storage"
)

var BackupServiceLogFlag = flags.LogServiceFlagFn("storage-backup")

const (
	secretsTimeout    = 30 * time.Second
	initializeTimeout = 60 * time.Second
)

var flagS3Bucket = &cli.StringFlag{
	Name:     "s3-bucket",
	Required: true,
	Usage:    "S3 bucket holding the cold export",
}
var flagS3Prefix = &cli.StringFlag{
	Name:  "s3-prefix",
	Value: "storage-engine",
	Usage: "key prefix inside the bucket",
}
var flagS3Region = &cli.StringFlag{
	Name:  "s3-region",
	Value: "us-east-1",
	Usage: "bucket region",
}
var flagS3Endpoint = &cli.StringFlag{
	Name:  "s3-endpoint",
	Usage: "endpoint override for S3-compatible services",
}
var flagS3AccessKey = &cli.StringFlag{
	Name:  "s3-access-key",
	Usage: "static access key; falls back to the SDK credential chain when unset",
}
var flagS3SecretKey = &cli.StringFlag{
	Name:  "s3-secret-key",
	Usage: "static secret key; falls back to the SDK credential chain when unset",
}
var flagS3PathStyle = &cli.BoolFlag{
	Name:  "s3-path-style",
	Usage: "use path-style bucket addressing (required by most self-hosted services)",
}

func main() {
	app := &cli.App{
		Name:  "storage-backup",
		Usage: "Export and restore ciphertext replicas through an S3-compatible bucket",
		Flags: []cli.Flag{
			flags.ConfigFlag,
			flags.MasterKeyHexFlag,
			flagS3Bucket,
			flagS3Prefix,
			flagS3Region,
			flagS3Endpoint,
			flagS3AccessKey,
			flagS3SecretKey,
			flagS3PathStyle,
			BackupServiceLogFlag,
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogUidFlag,
		},
		Commands: []*cli.Command{
			{
				Name:  "export",
				Usage: "copy every tracked file's ciphertext into the bucket",
				Action: func(cCtx *cli.Context) error {
					return runPass(cCtx, (*backup.Exporter).Export)
				},
			},
			{
				Name:  "restore",
				Usage: "re-seed every archived object across the configured providers",
				Action: func(cCtx *cli.Context) error {
					return runPass(cCtx, (*backup.Exporter).Restore)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runPass(cCtx *cli.Context, pass func(*backup.Exporter, context.Context) (backup.Report, error)) error {
	logger := flags.SetupLogger(cCtx)

	manager, cleanup, err := buildEngine(cCtx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	s3cfg := backup.S3Config{
		Bucket:         cCtx.String(flagS3Bucket.Name),
		Prefix:         cCtx.String(flagS3Prefix.Name),
		Region:         cCtx.String(flagS3Region.Name),
		Endpoint:       cCtx.String(flagS3Endpoint.Name),
		AccessKey:      cCtx.String(flagS3AccessKey.Name),
		SecretKey:      cCtx.String(flagS3SecretKey.Name),
		ForcePathStyle: cCtx.Bool(flagS3PathStyle.Name),
	}
	client, err := backup.NewS3Client(s3cfg)
	if err != nil {
		logger.Error("Failed to create S3 client", "err", err)
		return err
	}
	exporter := backup.NewExporter(manager, client, s3cfg, logger)

	if err := exporter.CheckBucket(cCtx.Context); err != nil {
		logger.Error("Bucket preflight failed", "err", err)
		return err
	}

	report, err := pass(exporter, cCtx.Context)
	if err != nil {
		logger.Error("Pass aborted", "err", err)
		return err
	}

	printReport(report)
	return report.Err()
}

// buildEngine wires a manager straight from the configuration, without the
// HTTP server or the background monitor. The caller must invoke cleanup.
func buildEngine(cCtx *cli.Context, logger *slog.Logger) (*redundancy.Manager, func(), error) {
	cfg, err := config.Load(cCtx.String(flags.ConfigFlag.Name))
	if err != nil {
		logger.Error("Failed to load config", "err", err)
		return nil, nil, err
	}
	if masterKey := cCtx.String(flags.MasterKeyHexFlag.Name); masterKey != "" {
		cfg.Encryption.MasterKey = masterKey
	}

	secretsCtx, cancelSecrets := context.WithTimeout(cCtx.Context, secretsTimeout)
	err = config.ResolveSecrets(secretsCtx, cfg, logger)
	cancelSecrets()
	if err != nil {
		logger.Error("Failed to resolve secrets", "err", err)
		return nil, nil, err
	}

	keyring, err := cryptoutils.NewStaticKeyringFromHex(cfg.Encryption.MasterKey)
	if err != nil {
		logger.Error("Failed to build keyring", "err", err)
		return nil, nil, err
	}

	db, err := storage.OpenDB(cfg.Index.Path)
	if err != nil {
		logger.Error("Failed to open index database", "err", err, "path", cfg.Index.Path)
		return nil, nil, err
	}
	cleanup := func() { db.Close() }

	index, err := redundancy.NewReplicaIndex(db)
	if err != nil {
		cleanup()
		logger.Error("Failed to prepare replica index", "err", err)
		return nil, nil, err
	}

	providers, err := storage.NewProviderFactory(logger, db).ProvidersFor(cfg.Providers)
	if err != nil {
		cleanup()
		logger.Error("Failed to build providers", "err", err)
		return nil, nil, err
	}

	level, err := cfg.Level()
	if err != nil {
		cleanup()
		logger.Error("Invalid redundancy level", "err", err)
		return nil, nil, err
	}
	primary, err := cfg.PrimaryID()
	if err != nil {
		cleanup()
		logger.Error("Invalid primary provider", "err", err)
		return nil, nil, err
	}

	manager, err := redundancy.NewManager(redundancy.ManagerConfig{
		Providers:   providers,
		Primary:     primary,
		Level:       level,
		ActiveKeyID: cfg.Encryption.ActiveKeyID,
		Cipher:      cryptoutils.NewBlobCipher(keyring),
		Index:       index,
		Timeouts:    cfg.EngineTimeouts(),
		Log:         logger,
	})
	if err != nil {
		cleanup()
		logger.Error("Failed to create redundancy manager", "err", err)
		return nil, nil, err
	}

	initCtx, cancelInit := context.WithTimeout(cCtx.Context, initializeTimeout)
	err = manager.Initialize(initCtx)
	cancelInit()
	if err != nil {
		// A degraded fleet is the expected disaster-recovery condition.
		// Files whose holders are all unreachable end up in the report.
		logger.Warn("Some providers failed to initialize", "err", err)
	}

	return manager, cleanup, nil
}

func printReport(report backup.Report) {
	type failure struct {
		Filename string `json:"filename"`
		Error    string `json:"error"`
	}
	out := struct {
		Completed int       `json:"completed"`
		Failed    []failure `json:"failed,omitempty"`
	}{Completed: report.Completed}
	for _, f := range report.Failed {
		out.Failed = append(out.Failed, failure{Filename: f.Filename, Error: f.Err.Error()})
	}

	encoded, _ := json.Marshal(out)
	fmt.Println(string(encoded))
}
