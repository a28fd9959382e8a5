package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/spf13/cobra"
)

func newDevicesCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List AirPlay receivers on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := newApp(st.cfg, st.fs)
			defer a.close()

			return a.run(cmd.Context(), func(ctx context.Context) error {
				return a.listDevices(ctx, cmd.OutOrStdout())
			})
		},
	}
}

// listDevices prints receivers as they resolve until the discovery timeout.
// Events can be dropped when the reader lags, so the registry is swept at
// the end for anything not yet printed.
func (a *app) listDevices(ctx context.Context, out io.Writer) error {
	if err := a.discovery.Start(ctx); err != nil {
		return err
	}

	timeout := time.NewTimer(a.cfg.DiscoveryTimeout)
	defer timeout.Stop()

	printed := map[string]struct{}{}
	show := func(index int, d domain.DeviceRecord) {
		if _, ok := printed[d.Key]; ok {
			return
		}
		printed[d.Key] = struct{}{}
		fmt.Fprintf(out, "[%d] %s\n", index, d)
	}
	sweep := func() {
		for i, d := range a.discovery.Registry().List() {
			show(i, d)
		}
		if len(printed) == 0 {
			fmt.Fprintln(out, "no receivers found")
		}
	}

	events := a.discovery.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				sweep()
				return nil
			}
			show(ev.Index, ev.Device)
		case <-timeout.C:
			sweep()
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
