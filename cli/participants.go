package cli

import (
	"os"

	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/spf13/cobra"
)

const filePermission = 0o644

func NewParticipantsCmd() *cobra.Command {
	var (
		name    string
		samples uint64
	)

	cmd := &cobra.Command{
		Use:   "participants [register|list|heartbeat]",
		Short: "Participants manager",
		Long:  `Register and list training participants.`,
	}

	registerCmd := &cobra.Command{
		Use:   "register <project_id> <participant_id>",
		Short: "Register participant",
		Long:  `Register a participant with a project. A name is generated when none is given.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			p, err := flsdk.RegisterParticipant(args[0], fl.Participant{
				ID:           args[1],
				Name:         name,
				TotalSamples: samples,
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, p)
		},
	}
	registerCmd.Flags().StringVar(&name, "name", "", "Display name")
	registerCmd.Flags().Uint64Var(&samples, "samples", 0, "Number of local training samples")

	listCmd := &cobra.Command{
		Use:   "list <project_id>",
		Short: "List participants",
		Long:  `List participants registered with a project.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			ps, err := flsdk.ListParticipants(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, ps)
		},
	}

	heartbeatCmd := &cobra.Command{
		Use:   "heartbeat <participant_id>",
		Short: "Send heartbeat",
		Long:  `Mark the participant alive.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := flsdk.Heartbeat(args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	cmd.AddCommand(registerCmd, listCmd, heartbeatCmd)

	return cmd
}

func NewCheckpointsCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "checkpoints [view|latest]",
		Short: "Checkpoints",
		Long:  `Download model checkpoints.`,
	}

	save := func(cmd *cobra.Command, cp checkpoint.Checkpoint) {
		if out == "" {
			logJSONCmd(*cmd, cp)

			return
		}
		data, err := fl.EncodeParameters(cp.Params)
		if err != nil {
			logErrorCmd(*cmd, err)

			return
		}
		if err := os.WriteFile(out, data, filePermission); err != nil {
			logErrorCmd(*cmd, err)

			return
		}
		cp.Params = nil
		logJSONCmd(*cmd, cp)
	}

	viewCmd := &cobra.Command{
		Use:   "view <checkpoint_id>",
		Short: "View checkpoint",
		Long:  `View a checkpoint. With --out the parameters are written to a CBOR file instead.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cp, err := flsdk.GetCheckpoint(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			save(cmd, cp)
		},
	}

	latestCmd := &cobra.Command{
		Use:   "latest <project_id>",
		Short: "Latest checkpoint",
		Long:  `View the project's most recent checkpoint.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cp, err := flsdk.LatestCheckpoint(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			save(cmd, cp)
		},
	}

	cmd.PersistentFlags().StringVar(&out, "out", "", "Write parameters to this CBOR file")
	cmd.AddCommand(viewCmd, latestCmd)

	return cmd
}
