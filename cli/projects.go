package cli

import (
	"strconv"

	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

const (
	DefCoordinatorURL  = "http://localhost:7070"
	DefTLSVerification = false
)

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10
)

var flsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	flsdk = s
}

func NewProjectsCmd() *cobra.Command {
	var (
		name        string
		shape       string
		localEpochs uint64
		batchSize   uint64
	)

	cmd := &cobra.Command{
		Use:   "projects [create|view|list|status|vote]",
		Short: "Projects manager",
		Long:  `Create, view and list federated learning projects.`,
	}

	createCmd := &cobra.Command{
		Use:   "create <id> <rounds> <min_participants>",
		Short: "Create project",
		Long: `Create a project.

Examples:
  # A three round project that needs two participants per round
  flcoord-cli projects create mnist 3 2 --shape 784x10,10 --epochs 1 --batch-size 32`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 3 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			rounds, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			quorum, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			shapes, err := parseShape(shape)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			p, err := flsdk.CreateProject(fl.Project{
				ID:              args[0],
				Name:            name,
				Rounds:          rounds,
				MinParticipants: quorum,
				LocalEpochs:     localEpochs,
				BatchSize:       batchSize,
				Shape:           shapes,
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, p)
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "Display name")
	createCmd.Flags().StringVar(&shape, "shape", "", "Tensor shapes, e.g. 784x10,10")
	createCmd.Flags().Uint64Var(&localEpochs, "epochs", 1, "Local epochs per round")
	createCmd.Flags().Uint64Var(&batchSize, "batch-size", 32, "Local batch size")

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View project",
		Long:  `View project.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			p, err := flsdk.GetProject(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, p)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Long:  `List projects.`,
		Run: func(cmd *cobra.Command, _ []string) {
			page, err := flsdk.ListProjects(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}
	listCmd.Flags().Uint64VarP(&defOffset, "offset", "o", defOffset, "Offset")
	listCmd.Flags().Uint64VarP(&defLimit, "limit", "l", defLimit, "Limit")

	statusCmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Training status",
		Long:  `Show whether the project is currently training and its progress.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			st, err := flsdk.TrainingStatus(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, st)
		},
	}

	voteCmd := &cobra.Command{
		Use:   "vote <id> <participant_id> <fedavg|fedprox>",
		Short: "Cast a strategy vote",
		Long:  `Cast a strategy vote in the project's open voting phase.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 3 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			strategy, err := fl.ParseStrategy(args[2])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			tally, err := flsdk.CastVote(args[0], args[1], strategy)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, tally)
		},
	}

	cmd.AddCommand(createCmd, viewCmd, listCmd, statusCmd, voteCmd)

	return cmd
}
