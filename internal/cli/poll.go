package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bakkerme/curator-streams/internal/config"
)

var pollSince string

var pollCmd = &cobra.Command{
	Use:   "poll <feed-id>",
	Short: "Poll a single feed once",
	Args:  cobra.ExactArgs(1),
	RunE:  pollAction,
}

func init() {
	pollCmd.Flags().StringVar(&pollSince, "since", "", "ignore the stored watermark and look back this far (e.g. 7d, 48h)")
	rootCmd.AddCommand(pollCmd)
}

func pollAction(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	streamCfg, feedCfg, err := findFeed(a.doc, args[0])
	if err != nil {
		return err
	}

	watermarks := map[string]time.Time{}
	if pollSince != "" {
		since, err := config.ParseDuration(pollSince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		feedCfg.Since = config.Duration(since)
	} else if watermarks, err = a.store.LoadWatermarks(ctx); err != nil {
		return err
	}

	single := *streamCfg
	single.Feeds = []config.FeedConfig{*feedCfg}
	stream, err := a.factory.NewStream(&single, watermarks)
	if err != nil {
		return err
	}

	result := stream.Scheduler.Poll(ctx, stream.Feeds[0])
	resp := result.Response
	fmt.Fprintf(cmd.OutOrStdout(), "feed %s: items=%d requests=%d stop=%s stored=%d filtered=%d failed=%d watermark=%s\n",
		result.FeedID, len(resp.Items), resp.RequestsConsumed, resp.Stop,
		result.Stored, result.Filtered, result.Failed+result.Invalid, formatTime(result.Watermark))
	if resp.Err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "error: %v\n", resp.Err)
	}
	return nil
}

func findFeed(doc *config.StreamsDocument, feedID string) (*config.StreamConfig, *config.FeedConfig, error) {
	for i := range doc.Streams {
		stream := &doc.Streams[i]
		for j := range stream.Feeds {
			if stream.Feeds[j].ID == feedID {
				feed := stream.Feeds[j]
				return stream, &feed, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("feed %q not found", feedID)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
