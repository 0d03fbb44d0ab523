package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bakkerme/curator-streams/internal/store"
)

var watermarksCmd = &cobra.Command{
	Use:   "watermarks",
	Short: "List persisted feed watermarks",
	RunE:  watermarksAction,
}

func init() {
	rootCmd.AddCommand(watermarksCmd)
}

func watermarksAction(cmd *cobra.Command, _ []string) error {
	env := environment()
	s, err := store.NewSQLiteStore(env.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	marks, err := s.LoadWatermarks(cmd.Context())
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(marks))
	for id := range marks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FEED\tWATERMARK\tITEMS")
	for _, id := range ids {
		count, err := s.Count(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", id, formatTime(marks[id]), count)
	}
	return w.Flush()
}
