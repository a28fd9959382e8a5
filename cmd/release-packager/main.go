package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/kar10s/airtwitch/internal/buildinfo"
	"github.com/kar10s/airtwitch/internal/lifecycle"
	"github.com/kar10s/airtwitch/internal/log"
	"github.com/kar10s/airtwitch/internal/release"
	"github.com/spf13/cobra"
)

func main() {
	var (
		outDir  string
		version string
		targets string
		docs    []string
	)

	cmd := &cobra.Command{
		Use:           "release-packager",
		Short:         "Cross-compile airtwitch and write release archives",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := release.ParseTargets(targets)
			if err != nil {
				return err
			}
			log.Configure(log.Config{Level: "info", Version: version})

			artifacts, err := release.BuildArtifacts(cmd.Context(), release.Options{
				OutDir:   outDir,
				RepoRoot: ".",
				Version:  version,
				Targets:  parsed,
				Docs:     docs,
				Logger:   log.WithComponent("release"),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, artifact := range artifacts {
				fmt.Fprintln(out, artifact.ArchiveName)
			}
			fmt.Fprintln(out, "SHA256SUMS")
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "dist", "output directory for release artifacts")
	cmd.Flags().StringVar(&version, "version", buildinfo.Version, "version stamped into binaries and archive names")
	cmd.Flags().StringVar(&targets, "targets", "", "comma-separated goos/goarch list (default: all supported)")
	cmd.Flags().StringSliceVar(&docs, "doc", nil, "repo-relative file to include in every archive (repeatable)")

	ctx, stop := signal.NotifyContext(context.Background(), lifecycle.TerminationSignals()...)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
