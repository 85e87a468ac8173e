package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

const (
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen = 72
)

// dummyHash is compared against when the login is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("ledger-dummy-password"), bcrypt.DefaultCost)

type RegisterInput struct {
	Login    string
	Email    string
	Name     string
	Password string
}

type Service struct {
	store  *storage.Store
	tokens *TokenService
	cost   int
	newID  func() string
	logger *log.Logger
}

func NewService(store *storage.Store, tokens *TokenService, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Service{
		store:  store,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		newID:  uuid.NewString,
		logger: logger.WithComponent(log.ComponentAuth),
	}
}

func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Register creates an active user. A taken login or email is a
// ConstraintViolation.
func (s *Service) Register(ctx context.Context, in RegisterInput) (core.User, error) {
	login := strings.ToLower(strings.TrimSpace(in.Login))
	if len(login) < 3 || len(login) > 50 {
		return core.User{}, core.Invalidf("login must be between 3 and 50 characters")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return core.User{}, core.Invalidf("invalid email address")
	}
	if len(in.Password) < minPasswordLen || len(in.Password) > maxPasswordLen {
		return core.User{}, core.Invalidf("password must be between %d and %d bytes", minPasswordLen, maxPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := core.User{
		ID:           s.newID(),
		Login:        login,
		Email:        strings.ToLower(addr.Address),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.InsertUser(ctx, u)
	}); err != nil {
		return core.User{}, fmt.Errorf("register user: %w", err)
	}

	s.logger.InfoContext(ctx, "User registered", log.FieldUserID, u.ID, log.FieldOperation, log.OpCreate)
	return u, nil
}

// Login checks the password of the user named by login or email and issues
// a token. Unknown users, wrong passwords and inactive users all fail with
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, login, password string) (string, time.Time, core.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))

	var u core.User
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		u, err = tx.GetUserByLogin(ctx, login)
		return err
	})
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return "", time.Time{}, core.User{}, fmt.Errorf("login: %w", err)
	}

	hash := dummyHash
	if err == nil {
		hash = []byte(u.PasswordHash)
	}
	if cmpErr := bcrypt.CompareHashAndPassword(hash, []byte(password)); cmpErr != nil || err != nil || !u.Active {
		s.logger.WarnContext(ctx, "Login failed", log.FieldOperation, log.OpLogin)
		return "", time.Time{}, core.User{}, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(u)
	if err != nil {
		return "", time.Time{}, core.User{}, err
	}
	s.logger.InfoContext(ctx, "User logged in", log.FieldUserID, u.ID, log.FieldOperation, log.OpLogin)
	return token, expires, u, nil
}
