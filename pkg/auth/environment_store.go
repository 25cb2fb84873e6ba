package auth

import (
	"os"
	"time"

	"repostreach/pkg/config"
)

// EnvironmentStore reads one read-only account from REPOSTREACH_*
// variables. Twitter tokens take precedence over a Bluesky login.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve builds the account from the environment. name only labels it.
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		name = "env"
	}
	account := &Account{
		Name:           name,
		Backend:        BackendTwitter,
		ConsumerKey:    getenv("CONSUMER_KEY"),
		ConsumerSecret: getenv("CONSUMER_SECRET"),
		AccessToken:    getenv("ACCESS_TOKEN"),
		AccessSecret:   getenv("ACCESS_SECRET"),
		LastModified:   time.Now(),
	}
	if account.Validate() == nil {
		return account, nil
	}

	account = &Account{
		Name:         name,
		Backend:      BackendBluesky,
		Identifier:   getenv("BLUESKY_IDENTIFIER"),
		AppPassword:  getenv("BLUESKY_APP_PASSWORD"),
		LastModified: time.Now(),
	}
	if account.Validate() == nil {
		return account, nil
	}
	return nil, ErrCredentialsNotFound
}

// List returns the environment account if one is complete
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists reports whether the environment holds a complete account
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}

func getenv(name string) string {
	return os.Getenv(config.EnvPrefix + name)
}
