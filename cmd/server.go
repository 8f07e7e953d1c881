package cmd

import (
	"auralite/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动Auralite服务器",
	Long:  `启动Auralite音乐库的HTTP服务器，提供歌单/曲目API、文件上传和静态文件服务`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
