package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"Musync/cache"
	"Musync/queue"

	"github.com/spf13/cobra"
)

var (
	redisRequeue string
	redisLimit   int
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试与队列查看",
	Long:  `测试Redis连接是否成功，显示各队列及死信队列长度，并可将死信消息重新投递。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始测试Redis连接...")

		// 加载配置
		cfg := loadConfig()
		fmt.Printf("Redis配置: %s, DB: %d\n", cfg.RedisAddr(), cfg.RedisDB)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// 连接Redis
		if err := cache.ConnectRedis(cfg); err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer cache.CloseRedis()
		fmt.Println("Redis连接成功！")

		// 测试Redis基本操作
		if err := cache.TestRedis(ctx); err != nil {
			log.Fatalf("Redis操作测试失败: %v", err)
		}
		fmt.Println("Redis基本操作测试成功！")

		q, err := queue.Connect(ctx, cfg)
		if err != nil {
			log.Fatalf("无法连接到队列: %v", err)
		}
		defer q.Close()

		if redisRequeue != "" {
			moved, err := q.Requeue(ctx, redisRequeue, redisLimit)
			if err != nil {
				log.Fatalf("重新投递失败 (已移动 %d 条): %v", moved, err)
			}
			fmt.Printf("已将 %d 条死信消息移回 %s\n", moved, redisRequeue)
		}

		fmt.Println("\n队列长度:")
		for _, name := range queue.InboundQueues {
			live, err := q.Len(ctx, name)
			if err != nil {
				log.Fatalf("读取队列长度失败: %v", err)
			}
			dead, err := q.Len(ctx, queue.DeadLetterQueue(name))
			if err != nil {
				log.Fatalf("读取死信队列长度失败: %v", err)
			}
			fmt.Printf("  %-16s %6d  (dead: %d)\n", name, live, dead)
		}
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)

	redisCmd.Flags().StringVar(&redisRequeue, "requeue", "", "将指定队列的死信消息重新投递")
	redisCmd.Flags().IntVar(&redisLimit, "limit", 0, "重新投递的最大条数，0 表示全部")
}
