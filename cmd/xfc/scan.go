package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hernaezTlon/x-following-cleaner/pkg/engine"
)

var scanDays int

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan your follow-list for inactive accounts",
	Long: `Scan every account you follow and classify it as active, inactive, or
skipped based on when it last posted.

The scan checkpoints its progress as it goes: interrupt it with Ctrl-C and
'xfc resume' picks up exactly where it left off. Accounts that could not be
checked (rate limits aside, which retry automatically) end up in the skipped
list for 'xfc retry-skipped'.

Results are stored locally; nothing is unfollowed until you run
'xfc unfollow'.`,
	Example: `  # Scan with the default 30-day threshold
  xfc scan

  # Treat anything quiet for 90 days as inactive
  xfc scan --days 90`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(engine.Command{Type: engine.CmdStartScan, InactiveDays: scanDays})
	},
}

// resumeCmd represents the resume command
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted scan",
	Long: `Resume a scan from its last durable checkpoint.

Everything already classified stays classified; the scan continues from the
first unchecked account.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(engine.Command{Type: engine.CmdResumeScan})
	},
}

// retrySkippedCmd represents the retry-skipped command
var retrySkippedCmd = &cobra.Command{
	Use:   "retry-skipped [usernames...]",
	Short: "Re-check accounts the last scan could not classify",
	Long: `Re-run the activity check for accounts the last scan skipped, plus any
usernames given on the command line.

Accounts already confirmed inactive are left alone; new findings merge into
the existing results.`,
	Example: `  # Retry everything the last scan skipped
  xfc retry-skipped

  # Retry the skipped set plus two specific accounts
  xfc retry-skipped someuser otheruser`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(engine.Command{
			Type:         engine.CmdRetrySkipped,
			InactiveDays: scanDays,
			Accounts:     accountsFromArgs(args),
		})
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(retrySkippedCmd)

	scanCmd.Flags().IntVar(&scanDays, "days", 0, "inactivity threshold in days (default: stored setting, initially 30)")
	retrySkippedCmd.Flags().IntVar(&scanDays, "days", 0, "inactivity threshold in days (default: stored setting, initially 30)")
}

// runJob wires the app, dispatches one command, and blocks until the job
// finishes or the user interrupts it. On interrupt the engines checkpoint
// and park, so the run stays resumable.
func runJob(cmd engine.Command) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	a.startPrinter()

	ack := a.ctrl.Handle(ctx, cmd)
	switch ack.Status {
	case engine.AckStarted, engine.AckResuming:
	case engine.AckAlreadyRunning:
		return fmt.Errorf("another job is already running")
	default:
		return fmt.Errorf("could not start: %s", ack.Message)
	}

	a.ctrl.Wait()
	a.finishPrinter()

	if ctx.Err() != nil {
		fmt.Println("\nInterrupted; progress saved. Run 'xfc resume' to continue.")
	}
	return nil
}
