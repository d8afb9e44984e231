package cmd

import (
	"context"
	"fmt"
	"time"

	"trackmarket/cache"
	"trackmarket/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并进行基本读写操作。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := db.ConnectRedis(cfg); err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer db.CloseRedis()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := db.TestRedis(ctx); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")

		depth, err := cache.NewSettlementQueue(db.RedisClient).Len(ctx)
		if err != nil {
			return fmt.Errorf("读取结算队列失败: %w", err)
		}
		fmt.Printf("待结算提现: %d\n", depth)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
