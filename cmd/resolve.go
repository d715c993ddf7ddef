package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"v4vfm/core/resolver"
	"v4vfm/model"
	"v4vfm/server"
)

var (
	resolveRefresh  bool
	resolveFeedURL  string
	resolvePlaylist string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "解析远程条目或歌单",
}

var resolveItemCmd = &cobra.Command{
	Use:   "item <feedGuid> <itemGuid>",
	Short: "解析单个 podcast:remoteItem",
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

		ref := model.RemoteItemReference{FeedGUID: args[0], ItemGUID: args[1], FeedURL: resolveFeedURL, Medium: model.DefaultMedium}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var track model.ResolvedTrack
		if resolveRefresh {
			track = deps.Resolver.Refresh(ctx, ref)
		} else {
			track = deps.Resolver.Resolve(ctx, ref)
		}
		return printJSON(track)
	},
}

var resolvePlaylistCmd = &cobra.Command{
	Use:   "playlist <feedUrl>",
	Short: "解析整个 musicL 歌单 feed",
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

		var bar *progressbar.ProgressBar
		opts := deps.Batch
		opts.Progress = func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(
					total,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionFullWidth(),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("Resolving tracks..."),
					progressbar.OptionSetTheme(progressbar.ThemeASCII),
				)
			}
			_ = bar.Set(done)
		}
		service := resolver.NewPlaylistService(deps.Cache, deps.Feeds, deps.Coordinator, opts)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		pl, err := service.Resolve(ctx, resolver.PlaylistRequest{ID: resolvePlaylist, FeedURL: args[0], Refresh: resolveRefresh})
		if bar != nil {
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s: %d/%d 条可播放，%d 条未解析\n", pl.Title, len(pl.Tracks), pl.Total, pl.Unresolved)
		return printJSON(pl)
	},
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	resolveCmd.PersistentFlags().BoolVar(&resolveRefresh, "refresh", false, "跳过缓存重新解析")
	resolveItemCmd.Flags().StringVar(&resolveFeedURL, "feed-url", "", "feed 地址提示")
	resolvePlaylistCmd.Flags().StringVar(&resolvePlaylist, "id", "", "歌单缓存 ID，默认使用 feed 地址")

	resolveCmd.AddCommand(resolveItemCmd, resolvePlaylistCmd)
	rootCmd.AddCommand(resolveCmd)
}

