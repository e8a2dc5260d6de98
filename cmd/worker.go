package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Musync/cache"
	"Musync/config"
	"Musync/core/coordinator"
	"Musync/core/plugin"
	"Musync/core/source"
	"Musync/db"
	"Musync/logger"
	"Musync/queue"
	"Musync/repository"
	"Musync/server"
	"Musync/storage"

	"github.com/spf13/cobra"
)

var (
	workerMigrate bool
	workerNoHTTP  bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "启动文件协调 worker",
	Long:  `连接数据库、Redis 与 MinIO，消费 file-check / playlist-parse / file-result / tag-result 队列，并启动管理端 HTTP 服务。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWorker(ctx, cfg)
	},
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	if err := db.ConnectGormDB(cfg); err != nil {
		return err
	}
	defer db.CloseGormDB()

	if workerMigrate {
		if err := db.AutoMigrateModels(); err != nil {
			return err
		}
	}

	// 文件锁
	if err := cache.ConnectRedis(cfg); err != nil {
		return err
	}
	defer cache.CloseRedis()

	q, err := queue.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	registry, err := source.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return err
	}
	if err := registry.Watch(ctx); err != nil {
		logger.Warn("[Worker] source registry hot reload disabled", logger.ErrorField(err))
	}

	filePlugin, tagPlugin, err := selectPlugins(cfg, registry, q)
	if err != nil {
		return err
	}

	var pictures coordinator.PictureSaver
	if cfg.MinioEnabled() {
		client, err := storage.NewMinioClient(ctx, cfg)
		if err != nil {
			return err
		}
		pictures = storage.NewPictureStore(client, cfg.MinioBucket)
	} else {
		logger.Warn("[Worker] MinIO not configured, tag pictures will not be stored")
	}

	store := repository.NewGormStore(db.GormDB)
	factory := coordinator.NewFactory(coordinator.Dependencies{
		Files:      store.Files,
		Tags:       store.Tags,
		Playlists:  store.Playlists,
		Sources:    registry,
		FilePlugin: filePlugin,
		TagPlugin:  tagPlugin,
		Locker:     cache.NewRedisLocker(cache.RedisClient, cfg.LockTTL),
		LockKey:    cache.FileLockKey,
		Pictures:   pictures,
	})

	consumer := queue.NewConsumer(q, coordinator.NewController(factory), queue.ConsumerOptions{
		Queues:      queue.InboundQueues,
		Workers:     cfg.WorkerCount,
		MaxRetries:  cfg.MaxRetries,
		PollTimeout: cfg.PollTimeout,
		RetryDelay:  cfg.RetryDelay,
	})
	consumer.Start(ctx)
	defer consumer.Stop()

	if workerNoHTTP {
		<-ctx.Done()
	} else {
		admin := server.New(cfg.HTTPAddr, q, map[string]server.Check{
			"db":    db.Ping,
			"queue": q.Ping,
			"lock": func(ctx context.Context) error {
				return cache.RedisClient.Ping(ctx).Err()
			},
		})
		if err := admin.Run(ctx); err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
	}

	logger.Info("[Worker] shutting down")
	return nil
}

// selectPlugins 按配置选择文件插件和标签插件
func selectPlugins(cfg *config.Config, registry *source.Registry, publisher plugin.Publisher) (plugin.FilePlugin, plugin.TagPlugin, error) {
	resolver := plugin.NewURLResolver(registry)

	manager := plugin.NewManager()
	queued := plugin.NewQueuePlugin(resolver, publisher)
	dryRun := plugin.NewDryRunPlugin(resolver)
	manager.RegisterFile(queued)
	manager.RegisterTag(queued)
	manager.RegisterFile(dryRun)
	manager.RegisterTag(dryRun)

	filePlugin, err := manager.File(cfg.FilePlugin)
	if err != nil {
		return nil, nil, err
	}
	tagPlugin, err := manager.Tag(cfg.TagPlugin)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("[Worker] plugins selected",
		logger.String("file", filePlugin.Name()),
		logger.String("tag", tagPlugin.Name()))
	return filePlugin, tagPlugin, nil
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().BoolVar(&workerMigrate, "migrate", false, "启动前执行数据库迁移")
	workerCmd.Flags().BoolVar(&workerNoHTTP, "no-http", false, "不启动管理端 HTTP 服务")
}
