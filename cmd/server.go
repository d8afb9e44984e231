package cmd

import (
	"trackmarket/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 trackmarket 服务器",
	Long:  `启动 HTTP 服务器，提供 API、通知 WebSocket、提现结算和 Web 界面`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
