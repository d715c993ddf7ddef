package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"v4vfm/core/feed"
	"v4vfm/logger"
	"v4vfm/server"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "曲目目录维护",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <feedUrl>...",
	Short: "抓取音乐 feed 并写入目录数据库",
	Args:  cobra.MinimumNArgs(1),
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
		if deps.Catalog == nil {
			return fmt.Errorf("目录数据库不可用")
		}

		for _, url := range args {
			data, err := deps.Feeds.Fetch(cmd.Context(), url)
			if err != nil {
				return err
			}
			feedRow, tracks, err := feed.CatalogEntries(data, url)
			if err != nil {
				return fmt.Errorf("%s: %w", url, err)
			}
			if err := deps.Catalog.UpsertFeed(cmd.Context(), feedRow); err != nil {
				return err
			}
			for _, t := range tracks {
				if err := deps.Catalog.UpsertTrack(cmd.Context(), t); err != nil {
					return err
				}
			}
			logger.Info("[catalog import] 导入完成", logger.String("feedGuid", feedRow.GUID), logger.Int("tracks", len(tracks)))
			fmt.Printf("%s (%s): %d 首曲目\n", feedRow.Title, feedRow.GUID, len(tracks))
		}
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list <feedGuid>",
	Short: "列出目录中某个 feed 的曲目",
	Args:  cobra.ExactArgs(1),
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
		if deps.Catalog == nil {
			return fmt.Errorf("目录数据库不可用")
		}

		tracks, err := deps.Catalog.ListTracksByFeed(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, t := range tracks {
			v4v := ""
			if t.ValueJSON != "" {
				v4v = " [v4v]"
			}
			fmt.Printf("%-40s %-32s %s%s\n", t.GUID, t.Title, t.AudioURL, v4v)
		}
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd, catalogListCmd)
	rootCmd.AddCommand(catalogCmd)
}
