package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"v4vfm/cache"
	"v4vfm/server"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "解析缓存维护",
}

var cacheCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "缓存后端连接测试",
	Long:  `连接配置的缓存后端，并进行一次写入、读取、删除测试。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("缓存后端: %s\n", cfg.Cache.Backend)
		if cfg.Cache.Backend == "redis" {
			fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)
		}

		deps, err := server.BuildDependencies(cfg)
		if err != nil {
			return fmt.Errorf("无法连接到缓存后端: %w", err)
		}
		defer deps.Close()

		if err := cache.Check(cmd.Context(), deps.Store); err != nil {
			return fmt.Errorf("缓存读写测试失败: %w", err)
		}
		fmt.Println("缓存读写测试成功！")
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <feedGuid> <itemGuid>",
	Short: "删除单个条目的缓存",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		deps, err := server.BuildDependencies(cfg)
		if err != nil {
			return err
		}
		defer deps.Close()

		deps.Cache.Invalidate(cmd.Context(), cache.ItemKey(args[0], args[1]))
		fmt.Println("已删除缓存:", cache.ItemKey(args[0], args[1]))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheCheckCmd, cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}
