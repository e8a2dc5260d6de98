package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"Musync/core/coordinator"
	"Musync/queue"

	"github.com/spf13/cobra"
)

var enqueueFilesFrom string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "手动投递协调消息",
}

var enqueueFileCmd = &cobra.Command{
	Use:   "file-check <file_id>",
	Short: "投递 file-check 消息",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publish(queue.FileCheck, coordinator.FileCheckMessage{FileID: args[0]})
	},
}

var enqueuePlaylistCmd = &cobra.Command{
	Use:   "playlist-parse <playlist_id> [url...]",
	Short: "投递 playlist-parse 消息",
	Long:  `把歌单当前的远端文件列表投递到 playlist-parse 队列。URL 可以直接作为参数，也可以用 --from 从文件读取（每行一个）。`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := append([]string{}, args[1:]...)
		if enqueueFilesFrom != "" {
			more, err := readLines(enqueueFilesFrom)
			if err != nil {
				return err
			}
			files = append(files, more...)
		}
		return publish(queue.PlaylistParse, coordinator.PlaylistParseMessage{PlaylistID: args[0], Files: files})
	},
}

func publish(queueName string, msg interface{}) error {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q, err := queue.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	id, err := q.Publish(ctx, queueName, msg)
	if err != nil {
		return err
	}
	fmt.Printf("已投递到 %s: %s\n", queueName, id)
	return nil
}

// readLines 读取非空行，# 开头的行视为注释
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.AddCommand(enqueueFileCmd)
	enqueueCmd.AddCommand(enqueuePlaylistCmd)

	enqueuePlaylistCmd.Flags().StringVar(&enqueueFilesFrom, "from", "", "从文件读取 URL 列表")
	enqueueCmd.Example = `  musync enqueue file-check 3f1c...
  musync enqueue playlist-parse p1 https://www.youtube.com/watch?v=abc
  musync enqueue playlist-parse p1 --from urls.txt`
}
