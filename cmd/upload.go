package cmd

import (
	"context"
	"fmt"
	"os"

	"auralite/client"

	"github.com/spf13/cobra"
)

var (
	uploadServerURL string
	uploadPlaylist  int64
	uploadArtist    string
	uploadAlbum     string
)

var uploadCmd = &cobra.Command{
	Use:   "upload [files...]",
	Short: "批量上传音频文件到指定歌单",
	Long:  `将一批本地音频文件按顺序上传到运行中的Auralite服务器，显示每个文件和整批的进度`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if uploadPlaylist <= 0 {
			return fmt.Errorf("--playlist is required")
		}

		items := make([]*client.UploadItem, 0, len(args))
		for _, path := range args {
			items = append(items, &client.UploadItem{
				Path:   path,
				Artist: uploadArtist,
				Album:  uploadAlbum,
			})
		}

		c := client.New(uploadServerURL)
		uploader := client.NewUploader(c, func(index int, itemPct, overallPct float64) {
			fmt.Printf("\r[%d/%d] %s %3.0f%% (batch %3.0f%%)",
				index+1, len(items), items[index].Path, itemPct, overallPct)
		})

		result, err := uploader.UploadBatch(context.Background(), uploadPlaylist, items)
		fmt.Println()
		for _, item := range result.Items {
			if item.State == client.StateFailed {
				fmt.Fprintf(os.Stderr, "failed: %s: %s\n", item.Path, item.Err)
			}
		}
		fmt.Printf("uploaded %d succeeded, %d failed\n", result.Succeeded, result.Failed)
		if err != nil {
			return fmt.Errorf("failed to refresh track list: %w", err)
		}
		if result.Tracks != nil {
			fmt.Printf("playlist %d now has %d tracks\n", uploadPlaylist, len(result.Tracks))
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadServerURL, "server", "http://localhost:8080", "Auralite服务器地址")
	uploadCmd.Flags().Int64Var(&uploadPlaylist, "playlist", 0, "目标歌单ID")
	uploadCmd.Flags().StringVar(&uploadArtist, "artist", "", "艺术家（可选，应用到整批）")
	uploadCmd.Flags().StringVar(&uploadAlbum, "album", "", "专辑（可选，应用到整批）")
	rootCmd.AddCommand(uploadCmd)
}
