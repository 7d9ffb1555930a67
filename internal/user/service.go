package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/user/entity"
)

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", b.cost()), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports hashes created with a lower cost than configured.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return c < b.cost()
}

// Repository is the storage the service needs; *repo.UserRepo implements it.
type Repository interface {
	Create(ctx context.Context, u *entity.User) (int64, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	GetMinimalAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error)
	IncrementFailedLogin(ctx context.Context, id int64) (int, error)
	LockIfThreshold(ctx context.Context, id int64, threshold int, lockMinutes int) (bool, error)
	ResetLoginSuccess(ctx context.Context, id int64) error
	UnlockIfExpired(ctx context.Context, id int64) (bool, error)
	UpdatePassword(ctx context.Context, id int64, hash, algo string) error
}

// UserService orchestrates authentication and signup flows.
type UserService struct {
	repo   Repository
	hasher PasswordHasher
	// configuration knobs
	MaxFailed   int
	LockMinutes int
}

func NewUserService(repo Repository, hasher PasswordHasher) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{repo: repo, hasher: hasher, MaxFailed: 6, LockMinutes: 15}
}

var (
	ErrLocked            = errors.New("user locked")
	ErrDisabled          = errors.New("user disabled")
	ErrBadCredentials    = errors.New("invalid credentials")
	ErrMustResetPassword = errors.New("must reset password")
	ErrInvalidSignup     = errors.New("invalid signup")
)

// AuthenticatePassword performs password authentication by email or username.
// On success resets counters and returns the user minimal auth view.
func (s *UserService) AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.MinimalAuthView, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrBadCredentials
	}

	var u *entity.User
	var err error
	if strings.Contains(identifier, "@") {
		u, err = s.repo.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		u, err = s.repo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, err
	}

	if u.Status == "locked" && u.LockedUntil != nil && u.LockedUntil.Before(time.Now()) {
		if unlocked, _ := s.repo.UnlockIfExpired(ctx, u.ID); unlocked {
			u.Status = "active"
			u.LockedUntil = nil
		}
	}

	if u.Status == "locked" {
		return nil, ErrLocked
	}
	if u.Status == "disabled" {
		return nil, ErrDisabled
	}
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}

	if !s.hasher.Verify(*u.PasswordHash, password) {
		if _, incErr := s.repo.IncrementFailedLogin(ctx, u.ID); incErr == nil {
			_, _ = s.repo.LockIfThreshold(ctx, u.ID, s.MaxFailed, s.LockMinutes)
		}
		return nil, ErrBadCredentials
	}

	if err := s.repo.ResetLoginSuccess(ctx, u.ID); err != nil {
		return nil, err
	}

	if u.MustResetPassword {
		return nil, ErrMustResetPassword
	}

	view, err := s.repo.GetMinimalAuthView(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	if s.hasher.NeedsRehash(*u.PasswordHash) {
		if newHash, algo, hErr := s.hasher.Hash(password); hErr == nil {
			_ = s.repo.UpdatePassword(ctx, u.ID, newHash, algo)
		}
	}
	return view, nil
}

// SignupInput is the data needed to create an account.
type SignupInput struct {
	Username string
	Email    string
	Password string
	UserType session.UserType
}

// SignupUser creates a user with password (hashing inside). Minimal required:
// username OR email, a password and a known user type.
func (s *UserService) SignupUser(ctx context.Context, in SignupInput) (int64, error) {
	if in.Username == "" && in.Email == "" {
		return 0, fmt.Errorf("%w: username or email required", ErrInvalidSignup)
	}
	if in.Password == "" {
		return 0, fmt.Errorf("%w: password required", ErrInvalidSignup)
	}
	if !in.UserType.Valid() {
		return 0, fmt.Errorf("%w: unknown user type %q", ErrInvalidSignup, in.UserType)
	}
	var normalizedEmail *string
	if in.Email != "" {
		e := strings.ToLower(strings.TrimSpace(in.Email))
		normalizedEmail = &e
	}
	var uname *string
	if in.Username != "" {
		u := strings.TrimSpace(in.Username)
		uname = &u
	}
	hash, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		return 0, err
	}
	userType := string(in.UserType)
	u := &entity.User{
		Username:     uname,
		Email:        normalizedEmail,
		PasswordHash: &hash,
		PasswordAlgo: &algo,
		Status:       "active",
		UserType:     &userType,
		Version:      1,
	}
	return s.repo.Create(ctx, u)
}

// GetActiveAuthView loads the auth view of an account that may still sign
// in. Locked and disabled accounts fail as they do in AuthenticatePassword.
func (s *UserService) GetActiveAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error) {
	v, err := s.repo.GetMinimalAuthView(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status == "locked" {
		unlocked, err := s.repo.UnlockIfExpired(ctx, id)
		if err != nil {
			return nil, err
		}
		if !unlocked {
			return nil, ErrLocked
		}
		v.Status = "active"
	}
	if v.Status == "disabled" {
		return nil, ErrDisabled
	}
	return v, nil
}
