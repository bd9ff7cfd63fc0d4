package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"octolab/internal/adminapi"
	"octolab/internal/auth"
	"octolab/internal/config"
	"octolab/internal/ent"
	"octolab/internal/enum"
	"octolab/internal/etcd"
	"octolab/internal/evidence"
	"octolab/internal/labsvc"
	"octolab/internal/logger"
	"octolab/internal/runtime"
	"octolab/internal/teardown"

	_ "octolab/internal/composert"
	_ "octolab/internal/firecracker"
)

func main() {
	app := &cli.App{
		Name:    "octolab",
		Usage:   "CVE rehearsal lab orchestration core",
		Version: "0.1.0",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Start the control plane server and teardown worker",
				Action: runServer,
			},
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, zlog := logger.PrepareLogger(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		zlog.Info("shutdown signal received")
		cancel()
	}()

	client, err := ent.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer client.Close()

	if err := client.Schema.Create(ctx); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer redisClient.Close()
	}

	defaultRuntime := enum.RuntimeType(cfg.DefaultRuntime)
	selector := runtime.NewSelector(defaultRuntime, redisClient)
	if err := selector.LoadOverride(ctx); err != nil {
		zlog.Warn("loading persisted runtime override failed", zap.Error(err))
	}

	runtimeCfg := buildRuntimeCfg(cfg)

	labs := labsvc.New(client, selector, runtimeCfg, cfg.Host)

	var store *evidence.ObjectStore
	if cfg.EvidenceS3Endpoint != "" {
		store, err = evidence.NewObjectStore(evidence.ObjectStoreConfig{
			Endpoint:        cfg.EvidenceS3Endpoint,
			Bucket:          cfg.EvidenceS3Bucket,
			AccessKeyID:     cfg.EvidenceS3AccessKey,
			SecretAccessKey: cfg.EvidenceS3SecretKey,
			UseSSL:          cfg.EvidenceS3UseSSL,
		})
		if err != nil {
			zlog.Warn("evidence object store unavailable, evidence will be marked unavailable", zap.Error(err))
			store = nil
		} else if err := store.EnsureBucket(ctx, ""); err != nil {
			zlog.Warn("ensuring evidence bucket failed", zap.Error(err))
		}
	}
	finalizer := evidence.NewFinalizer(client, store, cfg.StateDir)

	var coordinator *teardown.Coordinator
	if len(cfg.EtcdEndpoints) > 0 {
		etcdClient, err := etcd.NewClient(etcd.Config{Endpoints: cfg.EtcdEndpoints})
		if err != nil {
			zlog.Warn("etcd unavailable, teardown coordination disabled", zap.Error(err))
		} else {
			defer etcdClient.Close()
			coordinator = teardown.NewCoordinator(etcdClient)
		}
	}

	worker := teardown.New(teardown.Config{
		Client:        client,
		RuntimeCfg:    runtimeCfg,
		Evidence:      finalizer,
		Coordinator:   coordinator,
		TickInterval:  cfg.TeardownInterval,
		BatchSize:     cfg.TeardownBatchSize,
		PerLabTimeout: teardown.DefaultPerLabTimeout,
	})
	worker.Start(ctx)
	defer worker.Stop()

	api := adminapi.New(adminapi.Config{
		Labs:           labs,
		Selector:       selector,
		RuntimeCfg:     runtimeCfg,
		DefaultRuntime: defaultRuntime,
		Authenticator:  auth.NewJWTAuthenticator(),
		Admins:         auth.NewAdminAllowlist(cfg.AdminEmails),
		CORSOrigins:    []string{"http://localhost:5173", "http://localhost:3000"},
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zlog.Info("octolab control plane starting",
		zap.String("addr", addr),
		zap.String("default_runtime", string(defaultRuntime)),
		zap.String("db_driver", cfg.DatabaseDriver),
	)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	zlog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http server shutdown error", zap.Error(err))
	}

	return nil
}

func runMigrate(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := ent.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer client.Close()

	log.Printf("running migrations on %s...", cfg.DatabaseDriver)
	if err := client.Schema.Create(ctx); err != nil {
		return fmt.Errorf("creating schema resources: %w", err)
	}
	log.Println("migrations completed")
	return nil
}

// buildRuntimeCfg translates the flat AppConfig into the generic
// map[string]interface{} every runtime.Creator receives, so the
// compose and firecracker packages never need to know about
// config.AppConfig directly.
func buildRuntimeCfg(cfg *config.AppConfig) map[string]interface{} {
	return map[string]interface{}{
		"docker_host":            "",
		"projects_root":          cfg.StateDir + "/compose-projects",
		"kernel_path":            cfg.MicroVMKernelPath,
		"rootfs_base_path":       cfg.MicroVMRootfsDir,
		"state_dir":              cfg.StateDir,
		"jailer_path":            cfg.MicroVMJailerPath,
		"unsafe_allow_no_jailer": cfg.UnsafeAllowNoJailer,
		"env":                    cfg.Env,
	}
}
