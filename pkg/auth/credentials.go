package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"repostreach/pkg/config"
)

// Supported credential backends
const (
	BackendTwitter = "twitter"
	BackendBluesky = "bluesky"
)

// Account holds the API credentials for one named account. Twitter
// accounts carry the four OAuth 1.0a tokens, Bluesky accounts a handle
// and app password.
type Account struct {
	Name           string    `json:"name"`
	Backend        string    `json:"backend"`
	ConsumerKey    string    `json:"consumer_key,omitempty"`
	ConsumerSecret string    `json:"consumer_secret,omitempty"`
	AccessToken    string    `json:"access_token,omitempty"`
	AccessSecret   string    `json:"access_secret,omitempty"`
	Identifier     string    `json:"identifier,omitempty"`
	AppPassword    string    `json:"app_password,omitempty"`
	LastModified   time.Time `json:"last_modified"`
}

// Validate checks that every token the backend needs is present
func (a *Account) Validate() error {
	if a == nil || a.Name == "" {
		return errors.New("account name is required")
	}

	var missing []string
	require := func(field, value string) {
		if value == "" {
			missing = append(missing, field)
		}
	}

	switch a.Backend {
	case BackendTwitter:
		require("consumer key", a.ConsumerKey)
		require("consumer secret", a.ConsumerSecret)
		require("access token", a.AccessToken)
		require("access secret", a.AccessSecret)
	case BackendBluesky:
		require("identifier", a.Identifier)
		require("app password", a.AppPassword)
	default:
		return fmt.Errorf("unknown backend %q", a.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrInvalidCredentials, missing)
	}
	return nil
}

// ApplyTo copies the account's tokens into the social section of a config.
// Values already set in the config win.
func (a *Account) ApplyTo(social *config.SocialConfig) {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	switch a.Backend {
	case BackendTwitter:
		fill(&social.ConsumerKey, a.ConsumerKey)
		fill(&social.ConsumerSecret, a.ConsumerSecret)
		fill(&social.AccessToken, a.AccessToken)
		fill(&social.AccessSecret, a.AccessSecret)
	case BackendBluesky:
		fill(&social.BlueskyIdentifier, a.Identifier)
		fill(&social.BlueskyAppPassword, a.AppPassword)
	}
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	Store(account *Account) error
	// Retrieve returns ErrCredentialsNotFound when name is unknown
	Retrieve(name string) (*Account, error)
	List() ([]*Account, error)
	Delete(name string) error
	Exists(name string) bool
}

// Manager tries its stores in order. The system keyring comes first, then
// the encrypted file, then the environment.
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager with every backend available on
// this machine
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"), "")
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores builds a manager over explicit stores
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store validates account and saves it in the first store that accepts it
func (m *Manager) Store(account *Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(name string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(name); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// RetrieveDefault returns the environment account when one is set,
// otherwise the most recently modified stored account for backend
func (m *Manager) RetrieveDefault(backend string) (*Account, error) {
	for _, store := range m.stores {
		if envStore, ok := store.(*EnvironmentStore); ok {
			if account, err := envStore.Retrieve(""); err == nil && account.Backend == backend {
				return account, nil
			}
		}
	}

	accounts, err := m.List()
	if err != nil {
		return nil, err
	}
	var latest *Account
	for _, account := range accounts {
		if account.Backend != backend {
			continue
		}
		if latest == nil || account.LastModified.After(latest.LastModified) {
			latest = account
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w for backend %s", ErrCredentialsNotFound, backend)
	}
	return latest, nil
}

// List returns the accounts of every store sorted by name. When a name is
// held by several stores the most recently modified copy wins.
func (m *Manager) List() ([]*Account, error) {
	byName := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			if existing, ok := byName[account.Name]; !ok || account.LastModified.After(existing.LastModified) {
				byName[account.Name] = account
			}
		}
	}

	result := make([]*Account, 0, len(byName))
	for _, account := range byName {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes credentials from every store that holds them
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// getConfigDir returns the per-user configuration directory
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "repostreach")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "repostreach")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "repostreach")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "repostreach")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// SanitizeAccount returns a copy with every secret masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	masked := *account
	masked.ConsumerKey = maskString(account.ConsumerKey)
	masked.ConsumerSecret = maskString(account.ConsumerSecret)
	masked.AccessToken = maskString(account.AccessToken)
	masked.AccessSecret = maskString(account.AccessSecret)
	masked.AppPassword = maskString(account.AppPassword)
	return &masked
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "********"
	default:
		return s[:4] + "..." + s[len(s)-4:]
	}
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
