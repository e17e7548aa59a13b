package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hernaezTlon/x-following-cleaner/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage X session credentials",
	Long: `Manage stored X session cookies securely.

Sessions are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (XFC_SESSION_COOKIE or XFC_AUTH_TOKEN + XFC_CSRF_TOKEN)

Never share your cookie values; they are full access to your account.`,
}

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store an X session securely",
	Long: `Store an X session cookie pair in the system keychain or an encrypted file.

You will be prompted for:
  - Your X username (if not provided)
  - The auth_token cookie value
  - The ct0 cookie value
  - A user agent string (optional, press Enter for default)

Run 'xfc auth help' for a walkthrough of extracting these from your browser.`,
	Example: `  # Interactive login
  xfc auth login

  # Login for a specific username
  xfc auth login myhandle`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthLogin,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove a stored session",
	Long: `Remove a stored X session.

With no username, every stored session is removed after confirmation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthLogout,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Long:  `List stored X sessions with their token values masked.`,
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

// authHelpCmd represents the auth help command
var authHelpCmd = &cobra.Command{
	Use:   "help",
	Short: "Show how to extract cookies from your browser",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowCookieExtractionGuide()
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authHelpCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("initializing session manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	var username string
	if len(args) > 0 {
		username = args[0]
	}
	if username == "" {
		fmt.Print("X username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		username = strings.TrimPrefix(strings.TrimSpace(input), "@")
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Printf("A session for '%s' already exists. Replace it? (y/N): ", username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Println("\nEnter your cookie values (hidden as you type):")

	authToken, err := promptSecret("auth_token cookie value: ", func(v string) error {
		if len(v) < 20 {
			return fmt.Errorf("auth_token should be a long hex string (40 characters)")
		}
		return nil
	})
	if err != nil {
		return err
	}

	csrfToken, err := promptSecret("ct0 cookie value: ", func(v string) error {
		if len(v) < 16 {
			return fmt.Errorf("ct0 should be a long hex string (32+ characters)")
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Print("User agent (press Enter for default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	session := &auth.Session{
		Username:     username,
		AuthToken:    authToken,
		CSRFToken:    csrfToken,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}
	if err := manager.Store(session); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	masked := auth.SanitizeSession(session)
	fmt.Printf("\nStored session for @%s (auth_token %s, ct0 %s)\n",
		masked.Username, masked.AuthToken, masked.CSRFToken)
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("initializing session manager: %w", err)
	}

	if len(args) > 0 {
		if err := manager.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed session for @%s\n", args[0])
		return nil
	}

	sessions, err := manager.List()
	if err != nil || len(sessions) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}

	fmt.Printf("Remove all %d stored session(s)? (y/N): ", len(sessions))
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
		return nil
	}
	if err := manager.DeleteAll(); err != nil {
		return err
	}
	fmt.Println("All sessions removed.")
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("initializing session manager: %w", err)
	}

	sessions, err := manager.List()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No stored sessions. Run 'xfc auth login' to add one.")
		return nil
	}

	fmt.Printf("Stored sessions (%d):\n", len(sessions))
	for _, s := range sessions {
		masked := auth.SanitizeSession(s)
		fmt.Printf("  @%-16s auth_token=%s  ct0=%s", masked.Username, masked.AuthToken, masked.CSRFToken)
		if !s.LastModified.IsZero() {
			fmt.Printf("  (updated %s)", s.LastModified.Format("2006-01-02"))
		}
		fmt.Println()
	}
	return nil
}

// promptSecret reads a hidden value from the terminal, re-prompting while
// validate rejects it.
func promptSecret(prompt string, validate func(string) error) (string, error) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print(prompt)
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		value := strings.TrimSpace(string(raw))
		if err := validate(value); err != nil {
			fmt.Printf("That doesn't look right: %v\n", err)
			fmt.Print("Try again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				return "", fmt.Errorf("aborted")
			}
			continue
		}
		return value, nil
	}
}
