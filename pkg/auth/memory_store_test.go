package auth

import "sync"

// memoryStore is an in-memory CredentialStore with error injection
type memoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account

	storeErr error
	listErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{accounts: make(map[string]Account)}
}

// newMemoryManager returns a Manager backed only by a memory store
func newMemoryManager() (*Manager, *memoryStore) {
	store := newMemoryStore()
	return NewManagerWithStores(store), store
}

func (s *memoryStore) Store(account *Account) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Name] = *account
	return nil
}

func (s *memoryStore) Retrieve(name string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

func (s *memoryStore) List() ([]*Account, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]*Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		account := account
		accounts = append(accounts, &account)
	}
	return accounts, nil
}

func (s *memoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(s.accounts, name)
	return nil
}

func (s *memoryStore) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[name]
	return ok
}

func (s *memoryStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
