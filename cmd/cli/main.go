package main

import (
	"log"

	"github.com/absmach/flcoord/cli"
	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

func main() {
	var (
		coordinatorURL  string
		tlsVerification bool
	)

	rootCmd := &cobra.Command{
		Use:   "flcoord-cli",
		Short: "Federated learning coordinator CLI",
		Long:  `flcoord-cli is a command line interface for managing projects, training sessions and participants of a federated learning coordinator.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: tlsVerification,
			}
			s := sdk.NewSDK(sdkConf)
			cli.SetSDK(s)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&coordinatorURL, "coordinator-url", "c", cli.DefCoordinatorURL, "Coordinator service URL")
	rootCmd.PersistentFlags().BoolVar(&tlsVerification, "tls-verification", cli.DefTLSVerification, "Verify the coordinator's TLS certificate")

	rootCmd.AddCommand(
		cli.NewProjectsCmd(),
		cli.NewSessionsCmd(),
		cli.NewParticipantsCmd(),
		cli.NewCheckpointsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
