package cli

import (
	"github.com/spf13/cobra"

	"github.com/talentflowlabs/talentflow-core/internal/app"
	"github.com/talentflowlabs/talentflow-core/internal/notification"
	"github.com/talentflowlabs/talentflow-core/internal/reconcile"
	"github.com/talentflowlabs/talentflow-core/internal/webhook"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker [name]",
		Short: "Run a single pass of one worker and exit",
		Long: "Runs one claim-and-process pass of the named worker outside the " +
			"service process. Safe to invoke while the service is live: the " +
			"worker lock makes concurrent passes mutually exclusive.",
		Args: cobra.ExactArgs(1),
		ValidArgs: []string{
			notification.JobName,
			webhook.ProcessorJobName,
			reconcile.EngineJobName,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunWorker(args[0])
		},
	}

	return cmd
}
