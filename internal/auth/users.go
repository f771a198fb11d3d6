package auth

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ragportal/pkg/domain"
)

// User is one registered account.
type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserStore keeps accounts in a single JSON file guarded by a mutex. The
// file is rewritten whole on every mutation, small enough at this scale.
type UserStore struct {
	path string

	mu    sync.Mutex
	users map[string]User
}

// NewUserStore loads the user file, creating its directory if needed.
func NewUserStore(path string) (*UserStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("user store path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create user store dir: %w", err)
	}
	store := &UserStore{path: path, users: make(map[string]User)}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &store.users); err != nil {
			return nil, fmt.Errorf("decode user store: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read user store: %w", err)
	}
	return store, nil
}

// Register creates an account. The email must parse and the password must be
// 8 to 128 characters.
func (s *UserStore) Register(email, password string) error {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	if len(password) < 8 || len(password) > 128 {
		return fmt.Errorf("%w: password must be 8 to 128 characters", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return fmt.Errorf("%w: account already exists", domain.ErrValidation)
	}
	s.users[email] = User{
		Email:        email,
		PasswordHash: HashPassword(password),
		CreatedAt:    time.Now().UTC(),
	}
	return s.persistLocked()
}

// Authenticate checks credentials and returns the canonical email.
func (s *UserStore) Authenticate(email, password string) (string, error) {
	email = normalizeEmail(email)
	s.mu.Lock()
	user, ok := s.users[email]
	s.mu.Unlock()
	if !ok || !CheckPassword(password, user.PasswordHash) {
		return "", fmt.Errorf("%w: invalid credentials", domain.ErrValidation)
	}
	return user.Email, nil
}

func (s *UserStore) persistLocked() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write user store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace user store: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
