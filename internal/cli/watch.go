package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/wujekbizon/wolfmed-progress/internal/client"
)

var watchTimeout time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Attach to a running job and stream its progress",
	Long: `Attach to a job that is already running and stream its progress.

The server replays all events the job has recorded so far, so attaching
late still shows the full history. If the job already finished, the
command reports completion immediately.

Examples:
  progress watch 6f1c2a3e-8b4d-4f8e-9c2b-1a2b3c4d5e6f
  progress watch my-job --timeout 10m`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 10*time.Minute, "give up waiting after this long")
}

func runWatch(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	ctx, cancel := context.WithTimeout(cmd.Context(), watchTimeout)
	defer cancel()

	listener := client.NewListener(streamEndpoint(), jobID)
	listener.StartListening()
	defer listener.StopListening()

	return followJob(ctx, listener, jobID, nil)
}
