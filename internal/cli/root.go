// Package cli wires the discovery, resolution and playback components into
// the airtwitch command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kar10s/airtwitch/internal/buildinfo"
	"github.com/kar10s/airtwitch/internal/config"
	applog "github.com/kar10s/airtwitch/internal/log"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "airtwitch"

// state is shared by every subcommand of one root command.
type state struct {
	fs        afero.Fs
	v         *viper.Viper
	configDir string
	cfg       config.Config
}

// NewRootCommand builds the command tree on top of fs.
func NewRootCommand(fs afero.Fs) *cobra.Command {
	st := &state{fs: fs, v: config.New(fs)}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Play Twitch live streams on AirPlay receivers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(st.v, st.fs, st.configDir)
			if err != nil {
				return err
			}
			st.cfg = cfg
			applog.Configure(applog.Config{
				Level:   cfg.LogLevel,
				JSON:    cfg.LogJSON,
				Output:  cmd.ErrOrStderr(),
				Version: buildinfo.Version,
			})
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&st.configDir, "config-dir", config.DefaultDir, "directory holding config.toml")
	flags.String("client-id", "", "Twitch client ID (overrides bundled and TWITCH_CLIENT_ID)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "log JSON lines instead of console output")
	flags.Duration("discovery-timeout", 0, "how long to wait for receivers")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	lo.Must0(st.v.BindPFlag(config.KeyClientID, flags.Lookup("client-id")))
	lo.Must0(st.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level")))
	lo.Must0(st.v.BindPFlag(config.KeyLogJSON, flags.Lookup("log-json")))
	lo.Must0(st.v.BindPFlag(config.KeyDiscoveryTimeout, flags.Lookup("discovery-timeout")))
	lo.Must0(st.v.BindPFlag(config.KeyMetricsAddr, flags.Lookup("metrics-addr")))

	root.AddCommand(
		newDevicesCommand(st),
		newSearchCommand(st),
		newVariantsCommand(st),
		newPlayCommand(st),
		newWatchCommand(st),
		newSelfTestCommand(st),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command line against os.Args and returns the exit code.
func Execute(ctx context.Context) int {
	return run(ctx, afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, fs afero.Fs, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(fs)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %s\n", strings.TrimSpace(err.Error()))
		return 1
	}
	return 0
}
