package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"Musync/core/plugin"
	"Musync/core/source"

	"github.com/spf13/cobra"
)

var sourcesResolve string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "查看来源注册表",
	Long:  `校验并列出 SOURCES_FILE 中的来源；使用 --resolve 查看某个 URL 的来源与规范化结果。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		registry, err := source.LoadRegistry(cfg.SourcesFile)
		if err != nil {
			return err
		}

		if sourcesResolve != "" {
			resolver := plugin.NewURLResolver(registry)
			src, err := resolver.Source(sourcesResolve)
			if err != nil {
				return err
			}
			normalized, err := resolver.NormalizeFileURL(sourcesResolve)
			if err != nil {
				return err
			}
			fmt.Printf("source: %s\nurl:    %s\n", src, normalized)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPRIORITY\tPARSING\tROUTING KEY\tHOSTS")
		for _, s := range registry.All() {
			fmt.Fprintf(w, "%s\t%d\t%t\t%s\t%s\n", s.ID, s.Priority, s.AllowParsing, s.Description, strings.Join(s.Hosts, ","))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.Flags().StringVar(&sourcesResolve, "resolve", "", "解析并规范化一个 URL")
}
