package cli

import (
	"github.com/spf13/cobra"

	"github.com/eleven-am/warden/pkg/warden"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled evaluations and the HTTP trigger endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				rootOpts.Config.Server.Listen = listen
			}
			svc, err := warden.New(cmd.Context(), rootOpts.Config)
			if err != nil {
				return err
			}
			defer svc.Close()
			return svc.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override server.listen")
	return cmd
}
