package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"v4vfm/core/value"
	"v4vfm/model"
	"v4vfm/server"
)

var (
	splitTrackGUID string
	splitFeedGUID  string
	splitValueFile string
	splitFee       float64
)

var splitCmd = &cobra.Command{
	Use:   "split <amountSats>",
	Short: "计算一次支付的分账结果",
	Long:  `从目录中的 track/feed 或本地 JSON 文件读取 value 块，按权重分配金额`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var amount int64
		if _, err := fmt.Sscan(args[0], &amount); err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fee := server.PlatformFee(cfg.Payment)
		if cmd.Flags().Changed("fee") {
			fee.Percent = splitFee
		}

		block, err := splitBlock(cmd)
		if err != nil {
			return err
		}
		allocations, err := value.ComputeSplits(block, amount, fee)
		if err != nil {
			return err
		}
		for _, a := range allocations {
			marker := ""
			if a.Recipient.Fee {
				marker = " (fee)"
			}
			fmt.Printf("%-24s %-10s %8d sats  %s%s\n", a.Recipient.Name, a.Recipient.Type, a.AmountSats, a.Recipient.Address, marker)
		}
		return nil
	},
}

func splitBlock(cmd *cobra.Command) (*model.ValueBlock, error) {
	if splitValueFile != "" {
		data, err := os.ReadFile(splitValueFile)
		if err != nil {
			return nil, err
		}
		block, ok := value.ParseJSON(data)
		if !ok {
			return nil, fmt.Errorf("%s 不是有效的 value 块", splitValueFile)
		}
		return block, nil
	}
	if splitTrackGUID == "" && splitFeedGUID == "" {
		return nil, fmt.Errorf("需要 --track-guid、--feed-guid 或 --value-file 之一")
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	deps, err := server.BuildDependencies(cfg)
	if err != nil {
		return nil, err
	}
	defer deps.Close()
	if deps.Catalog == nil {
		return nil, fmt.Errorf("目录数据库不可用")
	}

	var block *model.ValueBlock
	if splitTrackGUID != "" {
		block, err = value.LoadEffective(cmd.Context(), deps.Catalog, splitTrackGUID)
	} else {
		block, err = value.LoadFeed(cmd.Context(), deps.Catalog, splitFeedGUID)
	}
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("未找到 value 块")
	}
	return block, nil
}

func init() {
	splitCmd.Flags().StringVar(&splitTrackGUID, "track-guid", "", "目录中的 track guid")
	splitCmd.Flags().StringVar(&splitFeedGUID, "feed-guid", "", "目录中的 feed guid")
	splitCmd.Flags().StringVar(&splitValueFile, "value-file", "", "value 块 JSON 文件")
	splitCmd.Flags().Float64Var(&splitFee, "fee", 0, "覆盖平台费百分比")
	rootCmd.AddCommand(splitCmd)
}
