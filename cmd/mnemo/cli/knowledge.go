package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mnemo/internal/knowledge"
)

var (
	kbCategory string
	kbTags     []string
	kbPriority int
	kbLimit    int
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the curated knowledge base",
}

var knowledgeAddCmd = &cobra.Command{
	Use:   "add [id] [title] [content]",
	Short: "Add or replace a knowledge entry",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		obs := newObserver()
		defer obs.Close()
		e := openEngine(obs)
		defer e.Close()

		err := e.AddKnowledge(context.Background(), knowledge.Entry{
			ID:       args[0],
			Category: kbCategory,
			Title:    args[1],
			Content:  args[2],
			Tags:     kbTags,
			Priority: kbPriority,
		})
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to store knowledge entry")
		}
		fmt.Printf("Knowledge saved: %s\n", args[0])
	},
}

var knowledgeSearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search knowledge entries",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		obs := newObserver()
		defer obs.Close()
		e := openEngine(obs)
		defer e.Close()

		q := knowledge.Query{
			Category: kbCategory,
			Tags:     kbTags,
			Limit:    kbLimit,
		}
		if len(args) == 1 {
			q.Text = args[0]
		}

		hits := e.SearchKnowledge(context.Background(), q)
		if jsonOutput {
			printJSON(hits)
			return
		}
		if len(hits) == 0 {
			fmt.Println("No matching knowledge entries.")
			return
		}
		for _, h := range hits {
			fmt.Printf("[%s p%d] %s: %s", h.Category, h.Priority, h.Title, h.Content)
			if len(h.Tags) > 0 {
				fmt.Printf(" (%s)", strings.Join(h.Tags, ", "))
			}
			fmt.Println()
		}
	},
}

func init() {
	RootCmd.AddCommand(knowledgeCmd)
	knowledgeCmd.AddCommand(knowledgeAddCmd)
	knowledgeCmd.AddCommand(knowledgeSearchCmd)

	knowledgeAddCmd.Flags().StringVarP(&kbCategory, "category", "c", "general", "Entry category")
	knowledgeAddCmd.Flags().StringSliceVar(&kbTags, "tags", nil, "Comma-separated tags")
	knowledgeAddCmd.Flags().IntVar(&kbPriority, "priority", 5, "Priority 1-10")

	knowledgeSearchCmd.Flags().StringVarP(&kbCategory, "category", "c", "", "Filter by category")
	knowledgeSearchCmd.Flags().StringSliceVar(&kbTags, "tags", nil, "Filter by tags (all must match)")
	knowledgeSearchCmd.Flags().IntVarP(&kbLimit, "limit", "n", 10, "Maximum entries to return")
}
