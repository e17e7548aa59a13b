package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hernaezTlon/x-following-cleaner/pkg/engine"
	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
)

var unfollowYes bool

// unfollowCmd represents the unfollow command
var unfollowCmd = &cobra.Command{
	Use:   "unfollow [usernames...]",
	Short: "Unfollow accounts found inactive by the last scan",
	Long: `Unfollow accounts from the last scan's inactive list.

With no arguments, the whole inactive list is targeted. Name specific
accounts to unfollow only those. Each unfollow goes through the API first
and falls back to the attached browser when the API refuses.

You are asked to confirm before anything is unfollowed; --yes skips the
prompt.`,
	Example: `  # Unfollow everything the scan flagged (after confirming)
  xfc unfollow

  # Unfollow two specific accounts without a prompt
  xfc unfollow someuser otheruser --yes`,
	RunE: runUnfollow,
}

func init() {
	rootCmd.AddCommand(unfollowCmd)
	unfollowCmd.Flags().BoolVarP(&unfollowYes, "yes", "y", false, "skip the confirmation prompt")
}

func runUnfollow(cmd *cobra.Command, args []string) error {
	if !unfollowYes {
		target := "every account on the inactive list"
		if len(args) > 0 {
			target = fmt.Sprintf("%d account(s)", len(args))
		}
		fmt.Printf("About to unfollow %s. Continue? (y/N): ", target)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	return runJob(engine.Command{Type: engine.CmdStartUnfollow, Usernames: args})
}

// accountsFromArgs turns command-line usernames into accounts, tolerating a
// leading @.
func accountsFromArgs(args []string) []models.Account {
	var out []models.Account
	for _, arg := range args {
		name := strings.TrimPrefix(strings.TrimSpace(arg), "@")
		if name == "" {
			continue
		}
		out = append(out, models.Account{Username: name})
	}
	return out
}
