package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSearchCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search Twitch channels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApp(st.cfg, st.fs)
			defer a.close()

			_, resolver, err := a.twitch()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")

			return a.run(cmd.Context(), func(ctx context.Context) error {
				if err := a.history.Load(); err != nil {
					a.logger.Warn().Err(err).Msg("history_load_failed")
				}

				channels, err := resolver.Search(ctx, query)
				if err != nil {
					return err
				}
				if err := a.history.Add(query); err != nil {
					a.logger.Warn().Err(err).Msg("history_save_failed")
				}

				out := cmd.OutOrStdout()
				if len(channels) == 0 {
					fmt.Fprintf(out, "no channels match %q\n", query)
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSTATUS")
				for _, ch := range channels {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", ch.ID, ch.Title(), ch.Status)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Show recent search queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := newApp(st.cfg, st.fs)
			defer a.close()

			if err := a.history.Load(); err != nil {
				return err
			}
			for _, q := range a.history.Entries() {
				fmt.Fprintln(cmd.OutOrStdout(), q)
			}
			return nil
		},
	})
	return cmd
}
