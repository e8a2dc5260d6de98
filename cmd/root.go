package cmd

import (
	"fmt"
	"os"

	"Musync/config"
	"Musync/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "musync",
	Short: "Musync keeps music libraries in sync across users and devices.",
	Long: `Musync 文件协调 worker：消费播放列表与文件消息，
合并多来源标签，并维护用户曲库和设备同步状态。`,
	SilenceUsage: true,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并初始化全局日志
func loadConfig() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	})
	return cfg
}
