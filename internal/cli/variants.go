package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newVariantsCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "variants <channel-id>",
		Short: "List the playable variants of a live channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApp(st.cfg, st.fs)
			defer a.close()

			client, resolver, err := a.twitch()
			if err != nil {
				return err
			}

			return a.run(cmd.Context(), func(ctx context.Context) error {
				ch, err := client.ChannelByID(ctx, args[0])
				if err != nil {
					return err
				}
				variants, err := resolver.ResolveLiveVariants(ctx, &ch)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if !ch.Live {
					fmt.Fprintf(out, "%s is offline\n", ch.Title())
					return nil
				}
				for i, v := range variants {
					fmt.Fprintf(out, "[%d] %s\t%s\n", i, v.Title, v.URI)
				}
				return nil
			})
		},
	}
}
