package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"Musync/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:     "storage",
	Aliases: []string{"minio"},
	Short:   "标签图片存储桶管理",
	Long:    `查看和管理MinIO存储桶中的标签图片，支持列出文件、查看统计信息、按前缀删除等功能。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		// 加载配置
		cfg := loadConfig()
		if !cfg.MinioEnabled() {
			log.Fatal("未配置 MINIO_ENDPOINT / MINIO_ACCESS_KEY")
		}
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		client, err := storage.NewMinioClient(ctx, cfg)
		if err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		if minioDelete {
			// 删除前缀
			if minioPrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			fmt.Printf("\n删除目录: %s\n", minioPrefix)
			removed, err := storage.RemovePrefix(ctx, client, cfg.MinioBucket, minioPrefix)
			if err != nil {
				log.Fatalf("删除目录失败 (已删除 %d 个): %v", removed, err)
			}
			fmt.Printf("已删除 %d 个对象\n", removed)
			return
		}

		objects, stats, err := storage.ListObjects(ctx, client, cfg.MinioBucket, minioPrefix)
		if err != nil {
			log.Fatalf("列出文件失败: %v", err)
		}

		if !minioStats {
			fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", minioPrefix)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSIZE\tMODIFIED")
			for _, o := range objects {
				fmt.Fprintf(w, "%s\t%s\t%s\n", o.Key, storage.FormatSize(o.Size), o.LastModified.Format(time.RFC3339))
			}
			w.Flush()
		}

		fmt.Println("\n存储桶统计信息:")
		fmt.Printf("  对象数量: %d\n", stats.TotalObjects)
		fmt.Printf("  总大小:   %s\n", storage.FormatSize(stats.TotalSize))
		if stats.TotalObjects > 0 {
			fmt.Printf("  最后修改: %s\n", stats.LastModified.Format(time.RFC3339))
		}
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	// 添加命令行参数
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "只显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定前缀下的所有文件")

	// 添加使用说明
	minioCmd.Example = `  # 列出所有图片
  musync storage

  # 只看某个文件的图片
  musync storage -p "pictures/3f1c.../"

  # 显示存储桶统计信息
  musync storage -s

  # 删除某个文件的全部图片
  musync storage -d -p "pictures/3f1c.../"`
}
