package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
)

// ErrCannotBanAdmin is returned when an admin id is passed to Ban.
var ErrCannotBanAdmin = errors.New("admins cannot be banned")

// UserService manages the people who talk to the bot.
type UserService struct {
	users   repository.UserRepository
	isAdmin func(int64) bool
	now     Clock
}

func NewUserService(users repository.UserRepository, isAdmin func(int64) bool, now Clock) *UserService {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, isAdmin: isAdmin, now: now}
}

// Register records first contact and refreshes names on later contacts.
func (s *UserService) Register(ctx context.Context, id int64, displayName, username string) (bool, error) {
	user := &model.User{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		JoinedAt:    s.now().UTC(),
	}
	if username = strings.TrimPrefix(strings.TrimSpace(username), "@"); username != "" {
		user.Username = &username
	}

	created, err := s.users.Register(ctx, user)
	if err != nil {
		return false, fmt.Errorf("register user: %w", err)
	}
	return created, nil
}

func (s *UserService) Ban(ctx context.Context, id int64) error {
	if s.isAdmin(id) {
		return ErrCannotBanAdmin
	}
	if err := s.users.SetBanned(ctx, id, true); err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	return nil
}

func (s *UserService) Unban(ctx context.Context, id int64) error {
	if err := s.users.SetBanned(ctx, id, false); err != nil {
		return fmt.Errorf("unban user: %w", err)
	}
	return nil
}

func (s *UserService) Info(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Recipients lists every user a broadcast goes to.
func (s *UserService) Recipients(ctx context.Context) ([]int64, error) {
	ids, err := s.users.ListActiveIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	return ids, nil
}
