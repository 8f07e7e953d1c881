package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "auralite",
	Short: "Auralite is a personal music library service.",
	Long:  `Auralite 音乐库服务：管理歌单、上传音频文件并通过Web播放器播放`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
