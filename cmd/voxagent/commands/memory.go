package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxagent/voxagent/pkg/voxagent/memory"
)

// newMemoryCmd creates the `voxagent memory` command group.
func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage stored conversation memory",
	}

	cmd.AddCommand(
		newMemorySearchCmd(),
		newMemoryHistoryCmd(),
		newMemoryForgetCmd(),
		newMemoryPruneCmd(),
	)
	return cmd
}

func newMemorySearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <keyword>...",
		Short: "Search long-term memory by keyword",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			channelFlag, _ := cmd.Flags().GetString("channel")

			query := memory.SearchQuery{
				Keywords: args,
				Channel:  memory.Channel(channelFlag),
				Limit:    limit,
				OrderBy:  memory.OrderByTimestamp,
			}
			records, err := rt.mem.Search(cmd.Context(), query)
			if err != nil {
				return err
			}
			printRecords(records)
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum records to return")
	cmd.Flags().String("channel", "", "filter by channel")
	return cmd
}

func newMemoryHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print the full history of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			records, err := rt.mem.ConversationHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRecords(records)
			return nil
		},
	}
}

func newMemoryForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <record-id>",
		Short: "Delete a single record from long-term memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			lt := rt.mem.LongTerm()
			if lt == nil {
				return fmt.Errorf("no long-term storage configured")
			}
			if err := lt.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newMemoryPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Run the retention policy once, now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.pruner == nil {
				return fmt.Errorf("no long-term storage configured")
			}
			deleted, err := rt.pruner.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d records\n", deleted)
			return nil
		},
	}
}

// printRecords renders records one per line.
func printRecords(records []memory.Record) {
	if len(records) == 0 {
		fmt.Println("(no records)")
		return
	}
	for _, r := range records {
		content := r.Content
		if len(content) > 80 {
			content = content[:77] + "..."
		}
		fields := []string{
			r.Timestamp.Format(time.RFC3339),
			string(r.Type),
		}
		if r.Role != "" {
			fields = append(fields, string(r.Role))
		}
		if r.Session.ConversationID != "" {
			fields = append(fields, "conv="+r.Session.ConversationID)
		}
		fmt.Printf("%s  %s  %s\n", r.ID, strings.Join(fields, " "), content)
	}
}
