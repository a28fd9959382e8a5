package cli

import (
	"encoding/json"

	"github.com/kar10s/airtwitch/internal/buildinfo"
	"github.com/kar10s/airtwitch/internal/diagnostics"
	"github.com/spf13/cobra"
)

type selfTestOutput struct {
	App struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"app"`
	Diagnostics diagnostics.Report `json:"diagnostics"`
}

func newSelfTestCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "self-test",
		Short: "Check client ID and multicast setup, print a JSON report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := selfTestOutput{Diagnostics: diagnostics.Detect(st.cfg.ClientID)}
			out.App.Name = appName
			out.App.Version = buildinfo.Version

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(out)
		},
	}
}
