package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var askOne = survey.AskOne

func newWatchCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Pick a receiver, a channel and a variant interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := newApp(st.cfg, st.fs)
			defer a.close()

			_, resolver, err := a.twitch()
			if err != nil {
				return err
			}
			if err := a.history.Load(); err != nil {
				a.logger.Warn().Err(err).Msg("history_load_failed")
			}

			return a.run(cmd.Context(), func(ctx context.Context) error {
				devices, err := a.findDevices(ctx, 1)
				if err != nil {
					return err
				}
				if len(devices) == 0 {
					return &domain.Error{Kind: domain.ErrNotFound, Op: "discover receivers"}
				}
				device, err := pick("Receiver", devices, domain.DeviceRecord.String)
				if err != nil {
					return err
				}

				var query string
				err = askOne(&survey.Input{
					Message: "Search channels:",
					Suggest: func(prefix string) []string {
						return lo.Filter(a.history.Entries(), func(q string, _ int) bool {
							return strings.HasPrefix(strings.ToLower(q), strings.ToLower(prefix))
						})
					},
				}, &query, survey.WithValidator(survey.Required))
				if err != nil {
					return err
				}

				channels, err := resolver.Search(ctx, query)
				if err != nil {
					return err
				}
				if err := a.history.Add(query); err != nil {
					a.logger.Warn().Err(err).Msg("history_save_failed")
				}
				if len(channels) == 0 {
					return &domain.Error{Kind: domain.ErrNotFound, Op: "search " + query}
				}
				ch, err := pick("Channel", channels, func(c domain.Channel) string {
					if c.Status == "" {
						return c.Title()
					}
					return c.Title() + " - " + c.Status
				})
				if err != nil {
					return err
				}

				variants, err := resolver.ResolveLiveVariants(ctx, &ch)
				if err != nil {
					return err
				}
				if !ch.Live {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is offline\n", ch.Title())
					return nil
				}
				if len(variants) == 0 {
					return &domain.Error{Kind: domain.ErrNotFound, Op: "select variant", Err: fmt.Errorf("%s has no variants", ch.Title())}
				}
				variant, err := pick("Variant", variants, func(v domain.LiveStreamVariant) string {
					return v.Title
				})
				if err != nil {
					return err
				}

				if _, err := a.controller.Play(ctx, device, variant); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "playing %s (%s) on %s, press Ctrl+C to stop\n", ch.Title(), variant.Title, device.Name)
				a.holdPlayback(ctx)
				return nil
			})
		},
	}
}

// pick asks the user to choose one of items, shown through label.
func pick[T any](message string, items []T, label func(T) string) (T, error) {
	if len(items) == 0 {
		var zero T
		return zero, &domain.Error{Kind: domain.ErrNotFound, Op: "select " + strings.ToLower(message)}
	}
	options := lo.Map(items, func(item T, i int) string {
		return fmt.Sprintf("%d. %s", i, label(item))
	})

	var index int
	if err := askOne(&survey.Select{Message: message + ":", Options: options}, &index); err != nil {
		var zero T
		return zero, err
	}
	return items[index], nil
}
