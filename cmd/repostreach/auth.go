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

	"repostreach/pkg/auth"
	"repostreach/pkg/ui"
)

var loginBackend string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage API credentials",
	Long: `Manage stored API credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (REPOSTREACH_*, read only)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store API credentials securely",
	Long: `Store API credentials in the system keychain or an encrypted file.

For Twitter you will be prompted for the four OAuth 1.0a values:
consumer key, consumer secret, access token and access token secret.
For Bluesky you will be prompted for a handle and an app password.`,
	Example: `  # Interactive Twitter login
  repostreach auth login

  # Bluesky login stored under a name
  repostreach auth login research --backend bluesky`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove stored credentials",
	Long: `Remove stored credentials.

If no name is provided, you will be shown a list of stored accounts
to choose from.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored accounts with masked credential values.`,
	RunE:  runList,
}

// guideCmd represents the auth guide command
var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to obtain API credentials",
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowCredentialGuide(os.Stdout, loginBackend)
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(guideCmd)

	authCmd.PersistentFlags().StringVarP(&loginBackend, "backend", "b", auth.BackendTwitter, "credential backend: twitter or bluesky")
}

func runLogin(cmd *cobra.Command, args []string) error {
	backend := strings.ToLower(loginBackend)
	if backend != auth.BackendTwitter && backend != auth.BackendBluesky {
		return fmt.Errorf("unknown backend %q", loginBackend)
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	name := backend
	if len(args) > 0 {
		name = args[0]
	}

	auth.ShowQuickGuide(os.Stdout, backend)
	fmt.Println()

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already exists. Update credentials? (y/N): ", name)
		if !confirm(reader) {
			return nil
		}
	}

	account := &auth.Account{
		Name:         name,
		Backend:      backend,
		LastModified: time.Now(),
	}

	fmt.Println("Secret values are hidden as you type.")
	fmt.Println()

	switch backend {
	case auth.BackendBluesky:
		if account.Identifier, err = prompt(reader, "Handle or DID"); err != nil {
			return err
		}
		if account.AppPassword, err = promptSecret(reader, "App password"); err != nil {
			return err
		}
	default:
		fields := []struct {
			label string
			dst   *string
		}{
			{"Consumer key", &account.ConsumerKey},
			{"Consumer secret", &account.ConsumerSecret},
			{"Access token", &account.AccessToken},
			{"Access token secret", &account.AccessSecret},
		}
		for _, f := range fields {
			if *f.dst, err = promptSecret(reader, f.label); err != nil {
				return err
			}
		}
	}

	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	ui.PrintSuccess(fmt.Sprintf("Account saved: %s (%s)", name, backend))
	if auth.IsKeyringAvailable() {
		fmt.Println("   Stored in the system keychain")
	} else {
		fmt.Println("   Stored in an encrypted file")
	}
	fmt.Println("\nStart a run with:")
	fmt.Printf("   $ repostreach run posts.csv --backend %s --account %s\n", backend, name)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if len(args) == 1 {
		if err := manager.Delete(args[0]); err != nil {
			return fmt.Errorf("failed to remove account: %w", err)
		}
		ui.PrintSuccess("Account removed: " + args[0])
		return nil
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintWarning("No stored accounts found")
		return nil
	}

	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s (%s)\n", i+1, account.Name, account.Backend)
	}
	fmt.Printf("  0. Cancel\n\n")

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)
	if choice == 0 {
		return nil
	}
	if choice < 0 || choice > len(accounts) {
		return fmt.Errorf("invalid choice %d", choice)
	}

	account := accounts[choice-1]
	if err := manager.Delete(account.Name); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.PrintSuccess("Account removed: " + account.Name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'repostreach auth login' to add an account")
		return nil
	}

	ui.PrintHighlight("Stored Accounts")
	fmt.Println()

	for i, account := range accounts {
		s := auth.SanitizeAccount(account)
		fmt.Printf("%d. %s (%s)\n", i+1, s.Name, s.Backend)
		if s.Backend == auth.BackendBluesky {
			fmt.Printf("   Identifier: %s\n", s.Identifier)
			fmt.Printf("   App password: %s\n", s.AppPassword)
		} else {
			fmt.Printf("   Consumer key: %s\n", s.ConsumerKey)
			fmt.Printf("   Access token: %s\n", s.AccessToken)
		}
		fmt.Printf("   Last Modified: %s\n", s.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
	return nil
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Printf("%s: ", label)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	value := strings.TrimSpace(input)
	if value == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return value, nil
}

// promptSecret reads without echo when stdin is a terminal
func promptSecret(reader *bufio.Reader, label string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return prompt(reader, label)
	}

	fmt.Printf("%s: ", label)
	secret, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	value := strings.TrimSpace(string(secret))
	if value == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return value, nil
}

func confirm(reader *bufio.Reader) bool {
	input, _ := reader.ReadString('\n')
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y")
}
