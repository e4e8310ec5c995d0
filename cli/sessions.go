package cli

import (
	"github.com/spf13/cobra"
)

func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions [start|list|view|cancel|close-voting|rounds|checkpoints]",
		Short: "Training sessions manager",
		Long:  `Start, inspect and cancel training sessions.`,
	}

	startCmd := &cobra.Command{
		Use:   "start <project_id>",
		Short: "Start session",
		Long:  `Open a voting phase for the project. A session already running for the project is cancelled.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := flsdk.StartSession(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list <project_id>",
		Short: "List sessions",
		Long:  `List a project's sessions, oldest first.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			sessions, err := flsdk.ListSessions(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, sessions)
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view <session_id>",
		Short: "View session status",
		Long:  `View session status.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			st, err := flsdk.SessionStatus(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, st)
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <session_id>",
		Short: "Cancel session",
		Long:  `Cancel session.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := flsdk.CancelSession(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}

	closeVotingCmd := &cobra.Command{
		Use:   "close-voting <session_id>",
		Short: "Close voting",
		Long:  `End the session's voting window now.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := flsdk.CloseVoting(args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	roundsCmd := &cobra.Command{
		Use:   "rounds <session_id>",
		Short: "Round history",
		Long:  `List the session's aggregated rounds.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			rounds, err := flsdk.ListRoundResults(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			for i := range rounds {
				rounds[i].Params = nil
			}
			logJSONCmd(*cmd, rounds)
		},
	}

	checkpointsCmd := &cobra.Command{
		Use:   "checkpoints <session_id>",
		Short: "List checkpoints",
		Long:  `List the session's checkpoints.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cps, err := flsdk.ListCheckpoints(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, cps)
		},
	}

	cmd.AddCommand(startCmd, listCmd, viewCmd, cancelCmd, closeVotingCmd, roundsCmd, checkpointsCmd)

	return cmd
}
