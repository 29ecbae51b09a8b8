package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mnemo/internal/engine"
)

var (
	verbose    bool
	jsonOutput bool
	dbPath     string
	configPath string

	providerName string
	modelName    string
	tokensUsed   int
	failed       bool
	contextUsed  bool
	recallLimit  int
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Interaction memory and self-improvement engine",
	Long: `Mnemo remembers past AI interactions, serves repeated questions from
memory, assembles context from similar history and curated knowledge,
and learns quality patterns from feedback.`,
}

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Check memory and assemble context for a query",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		obs := newObserver()
		defer obs.Close()
		e := openEngine(obs)
		defer e.Close()

		res, err := e.Process(context.Background(), engine.Request{
			Query:    args[0],
			Provider: providerName,
			Model:    modelName,
		})
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to process query")
		}

		if jsonOutput {
			printJSON(res)
			return
		}
		if res.FromMemory {
			fmt.Printf("(from memory, %d tokens saved)\n%s\n", res.TokensSaved, res.Response)
			return
		}
		fmt.Println("No exact memory. Assembled context:")
		if res.Context == "" {
			fmt.Println("(none)")
		} else {
			fmt.Println(res.Context)
		}
		for _, s := range res.Suggestions {
			fmt.Printf("hint: %s\n", s)
		}
	},
}

var rememberCmd = &cobra.Command{
	Use:   "remember [query] [response]",
	Short: "Store a completed interaction",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		obs := newObserver()
		defer obs.Close()
		e := openEngine(obs)
		defer e.Close()

		id, err := e.Record(context.Background(), engine.RecordRequest{
			Query:       args[0],
			Response:    args[1],
			Provider:    providerName,
			Model:       modelName,
			TokensUsed:  tokensUsed,
			Success:     !failed,
			ContextUsed: contextUsed,
		})
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to record interaction")
		}
		if jsonOutput {
			printJSON(map[string]string{"id": id})
		} else {
			fmt.Printf("Remembered: %s\n", id)
		}
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall [query]",
	Short: "Find past interactions similar to a query",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		obs := newObserver()
		defer obs.Close()
		e := openEngine(obs)
		defer e.Close()

		got, err := e.Recall(context.Background(), args[0], recallLimit)
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to recall")
		}
		if jsonOutput {
			printJSON(got)
			return
		}
		if len(got) == 0 {
			fmt.Println("No similar interactions found.")
			return
		}
		for _, r := range got {
			fmt.Printf("[%.2f] %s\n  %s\n", r.Score, r.Query, r.Response)
		}
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback [query-or-id] [rating 1-5] [comment]",
	Short: "Rate a stored interaction",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		rating, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Printf("Invalid rating: %s\n", args[1])
			os.Exit(1)
		}
		comment := ""
		if len(args) == 3 {
			comment = args[2]
		}

		obs := newObserver()
		defer obs.Close()
		e := openEngine(obs)
		defer e.Close()

		if err := e.Feedback(context.Background(), args[0], rating, comment); err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to attach feedback")
		}
		fmt.Println("Feedback recorded.")
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory and learning statistics",
	Run: func(cmd *cobra.Command, args []string) {
		obs := newObserver()
		defer obs.Close()
		e := openEngine(obs)
		defer e.Close()

		stats := e.Stats()
		if jsonOutput {
			printJSON(stats)
			return
		}
		fmt.Printf("Memories:       %d\n", stats.Total)
		fmt.Printf("Success rate:   %.0f%%\n", stats.SuccessRate*100)
		fmt.Printf("Cache hit rate: %.0f%%\n", stats.CacheHitRate*100)
		fmt.Printf("Tokens saved:   %d\n", stats.TokensSavedTotal)
		fmt.Printf("Quality trend:  %s\n", stats.QualityTrend.Trend)
		for p, n := range stats.UsageByProvider {
			fmt.Printf("  %s: %d\n", p, n)
		}
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Show learned mistake and success patterns",
	Run: func(cmd *cobra.Command, args []string) {
		obs := newObserver()
		defer obs.Close()
		e := openEngine(obs)
		defer e.Close()

		state := e.Patterns()
		if jsonOutput {
			printJSON(state)
			return
		}
		fmt.Printf("Feedback events: %d\n", state.FeedbackCount)
		fmt.Printf("Mistakes (%d):\n", len(state.MistakePatterns))
		for _, p := range state.MistakePatterns {
			fmt.Printf("  [%s/%s] %s\n", p.Topic, p.Reason, p.Query)
		}
		fmt.Printf("Successes (%d):\n", len(state.SuccessPatterns))
		for _, p := range state.SuccessPatterns {
			fmt.Printf("  [%s/%s] %s\n", p.Topic, p.Reason, p.Query)
		}
	},
}

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete interactions older than a retention window",
	Run: func(cmd *cobra.Command, args []string) {
		obs := newObserver()
		defer obs.Close()
		e := openEngine(obs)
		defer e.Close()

		cutoff := time.Now().AddDate(0, 0, -pruneDays)
		removed, err := e.PruneMemories(cutoff)
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to prune memories")
		}
		fmt.Printf("Pruned %d interactions older than %d days.\n", removed, pruneDays)
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output, non-interactive")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default ~/.mnemo/memory.db)")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Engine config file (.json or .yaml)")

	RootCmd.AddCommand(askCmd)
	RootCmd.AddCommand(rememberCmd)
	RootCmd.AddCommand(recallCmd)
	RootCmd.AddCommand(feedbackCmd)
	RootCmd.AddCommand(statsCmd)
	RootCmd.AddCommand(patternsCmd)
	RootCmd.AddCommand(pruneCmd)

	askCmd.Flags().StringVarP(&providerName, "provider", "p", "", "Provider the query is destined for")
	askCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name")

	rememberCmd.Flags().StringVarP(&providerName, "provider", "p", "", "Provider that produced the response")
	rememberCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name")
	rememberCmd.Flags().IntVarP(&tokensUsed, "tokens", "t", 0, "Tokens consumed by the interaction")
	rememberCmd.Flags().BoolVar(&failed, "failed", false, "Mark the interaction as unsuccessful")
	rememberCmd.Flags().BoolVar(&contextUsed, "context-used", false, "Retrieved context was supplied to the responder")

	recallCmd.Flags().IntVarP(&recallLimit, "limit", "n", 5, "Maximum matches to return")

	pruneCmd.Flags().IntVar(&pruneDays, "days", 90, "Retention window in days")
}
