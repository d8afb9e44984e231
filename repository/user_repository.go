package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trackmarket/model"

	"gorm.io/gorm"
)

// ProfileUpdate lists the editable profile fields.
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Bio       string
}

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*model.User, error)
}

type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a UserRepository backed by GORM.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *gormUserRepository) CreateUser(ctx context.Context, user *model.User) error {
	user.Email = normalizeEmail(user.Email)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *gormUserRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", normalizeEmail(email))
}

func (r *gormUserRepository) first(ctx context.Context, cond string, arg interface{}) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// UpdateProfile writes all editable fields, including empty ones, and
// returns the stored user.
func (r *gormUserRepository) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*model.User, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"first_name": strings.TrimSpace(upd.FirstName),
		"last_name":  strings.TrimSpace(upd.LastName),
		"email":      normalizeEmail(upd.Email),
		"phone":      strings.TrimSpace(upd.Phone),
		"bio":        upd.Bio,
	})
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to update profile %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetUserByID(ctx, id); err != nil {
			return nil, err
		}
	}
	return r.GetUserByID(ctx, id)
}
