package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/spf13/cobra"
)

func newPlayCommand(st *state) *cobra.Command {
	var deviceTarget, channelID, variantTarget string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a live channel on a receiver until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(deviceTarget) == "" || strings.TrimSpace(channelID) == "" {
				return errors.New("--device and --channel are required")
			}

			a := newApp(st.cfg, st.fs)
			defer a.close()

			client, resolver, err := a.twitch()
			if err != nil {
				return err
			}

			return a.run(cmd.Context(), func(ctx context.Context) error {
				device, err := a.selectDevice(ctx, deviceTarget)
				if err != nil {
					return err
				}

				ch, err := client.ChannelByID(ctx, channelID)
				if err != nil {
					return err
				}
				variants, err := resolver.ResolveLiveVariants(ctx, &ch)
				if err != nil {
					return err
				}
				if !ch.Live {
					return &domain.Error{Kind: domain.ErrNotFound, Op: "play", Err: fmt.Errorf("%s is offline", ch.Title())}
				}
				variant, err := selectVariant(variants, variantTarget)
				if err != nil {
					return err
				}

				sess, err := a.controller.Play(ctx, device, variant)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "playing %s (%s) on %s, press Ctrl+C to stop\n", ch.Title(), variant.Title, sess.Device.Name)

				a.holdPlayback(ctx)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&deviceTarget, "device", "d", "", "receiver index or name")
	cmd.Flags().StringVarP(&channelID, "channel", "c", "", "channel ID")
	cmd.Flags().StringVar(&variantTarget, "variant", "", "variant index or title (default: first)")
	return cmd
}
