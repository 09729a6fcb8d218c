package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"pharmacy_inventory/internal/model"
)

// CreateUser inserts an account. ok is false when the username or email is taken.
func (s *Store) CreateUser(ctx context.Context, u *model.User) (bool, error) {
	db, err := s.conn(ctx, "create user")
	if err != nil {
		return false, err
	}
	if err := db.Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fault("create user", err)
	}
	return true, nil
}

// FindUser looks an account up by username.
func (s *Store) FindUser(ctx context.Context, username string) (*model.User, bool, error) {
	db, err := s.conn(ctx, "find user")
	if err != nil {
		return nil, false, err
	}
	var u model.User
	if err := db.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fault("find user", err)
	}
	return &u, true, nil
}
