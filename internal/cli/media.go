package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bakkerme/curator-streams/internal/retrieval"
)

var mediaCmd = &cobra.Command{
	Use:   "media <stream> <media-id>",
	Short: "Look up a media object by its network id",
	Args:  cobra.ExactArgs(2),
	RunE:  mediaAction,
}

func init() {
	rootCmd.AddCommand(mediaCmd)
}

func mediaAction(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var found bool
	for i := range a.doc.Streams {
		streamCfg := &a.doc.Streams[i]
		if streamCfg.Name != args[0] {
			continue
		}
		found = true
		connector, err := a.factory.NewConnector(streamCfg)
		if err != nil {
			return err
		}
		media, err := retrieval.NewEngine(connector, a.logger).ResolveMedia(ctx, args[1])
		if err != nil {
			return fmt.Errorf("stream %q: %w", streamCfg.Name, err)
		}
		if media == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "media %s: not found\n", args[1])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "media %s: type=%s url=%s title=%q\n", media.ID, media.Type, media.URL, media.Title)
	}
	if !found {
		return fmt.Errorf("stream %q not found", args[0])
	}
	return nil
}
