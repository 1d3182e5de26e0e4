package service

import (
	"context"

	"dmchat/internal/domain"
)

// UserService provides user lookup for the API layer.
type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	return s.users.ListActive(ctx, offset, limit)
}
