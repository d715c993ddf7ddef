package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"v4vfm/config"
	"v4vfm/logger"
	"v4vfm/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "v4vfm",
	Short: "v4vfm resolves Podcasting 2.0 music playlists and value splits.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := loadConfig()
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return server.Start(cfg)
	},
	SilenceUsage: true,
}

var loaded *config.Config

// loadConfig 加载配置并初始化日志，只执行一次
func loadConfig() (*config.Config, error) {
	if loaded != nil {
		return loaded, nil
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	if configPath == "" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	})
	loaded = cfg
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML 配置文件路径")
}

// Execute executes the root command.
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
