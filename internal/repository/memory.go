package repository

import (
	"context"
	"sync"
	"time"

	"github.com/sumire/studenthub/internal/domain"
)

// InMemory is a mutex-guarded identity store with the same semantics as the
// Postgres Store. Multi-step mutations run inside one critical section, which
// stands in for the Store's transactions.
type InMemory struct {
	mu         sync.Mutex
	accounts   map[int64]*domain.Account
	challenges map[string]*domain.OTPChallenge
	nextAcct   int64
	nextChall  int64
}

// NewInMemory creates an empty in-memory identity store.
func NewInMemory() *InMemory {
	return &InMemory{
		accounts:   make(map[int64]*domain.Account),
		challenges: make(map[string]*domain.OTPChallenge),
	}
}

func (m *InMemory) FindAccountByID(_ context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyAccount(acct), nil
}

func (m *InMemory) FindAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct := m.findByEmail(email); acct != nil {
		return copyAccount(acct), nil
	}
	return nil, domain.ErrNotFound
}

func (m *InMemory) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usernameTaken(username), nil
}

func (m *InMemory) ReplaceChallenge(_ context.Context, ch *domain.OTPChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextChall++
	ch.ID = m.nextChall
	stored := *ch
	m.challenges[ch.Email] = &stored
	return nil
}

func (m *InMemory) FindChallenge(_ context.Context, email, code string) (*domain.OTPChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.challenges[email]
	if !ok || ch.Verified || ch.Code != code {
		return nil, domain.ErrNotFound
	}
	out := *ch
	return &out, nil
}

func (m *InMemory) CreateVerifiedSignup(_ context.Context, challengeID int64, acct *domain.Account) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.challenges[acct.Email]
	if !ok || ch.ID != challengeID || ch.Verified {
		return nil, domain.ErrInvalidCode
	}
	if m.usernameTaken(acct.Username) {
		return nil, domain.ErrUsernameTaken
	}
	if m.findByEmail(acct.Email) != nil {
		return nil, domain.ErrEmailTaken
	}

	ch.Verified = true
	return m.insert(acct), nil
}

func (m *InMemory) CreateOAuthAccount(_ context.Context, acct *domain.Account) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findByEmail(acct.Email) != nil {
		return nil, domain.ErrEmailTaken
	}
	if m.usernameTaken(acct.Username) {
		return nil, domain.ErrUsernameTaken
	}
	return m.insert(acct), nil
}

// insert assumes the caller holds the lock and has checked uniqueness.
func (m *InMemory) insert(acct *domain.Account) *domain.Account {
	m.nextAcct++
	stored := *acct
	stored.ID = m.nextAcct
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.accounts[stored.ID] = &stored
	return copyAccount(&stored)
}

func (m *InMemory) findByEmail(email string) *domain.Account {
	for _, acct := range m.accounts {
		if acct.Email == email {
			return acct
		}
	}
	return nil
}

func (m *InMemory) usernameTaken(username string) bool {
	for _, acct := range m.accounts {
		if acct.Username == username {
			return true
		}
	}
	return false
}

func copyAccount(acct *domain.Account) *domain.Account {
	out := *acct
	return &out
}
