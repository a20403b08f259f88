package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	app "imgserv/src/app"
)

type (
	// UserStore is the persistent side of identity resolution.
	UserStore interface {
		FindOrCreateUser(ctx context.Context, info app.OAuthInfo) (*app.User, error)
		GetUserByID(ctx context.Context, id uint) (*app.User, error)
		GetUserByEmail(ctx context.Context, email string) (*app.User, error)
		ListUsers(ctx context.Context, skip, limit int) ([]app.User, error)
		DeleteUser(ctx context.Context, id uint) (bool, error)
	}

	UserRepository struct {
		db *gorm.DB
	}
)

var _ UserStore = (*UserRepository)(nil)
var _ app.IdentityResolver = (*UserRepository)(nil)

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindOrCreateUser returns the user linked to (provider, provider user id),
// creating the user and the link atomically on first login. The unique
// index on the link decides concurrent first logins: the loser's insert
// fails and it reads the winner's row instead.
func (r *UserRepository) FindOrCreateUser(ctx context.Context, info app.OAuthInfo) (*app.User, error) {
	if info.Provider == "" || info.ProviderUserID == "" || info.Email == "" {
		return nil, fmt.Errorf("incomplete oauth identity %q/%q", info.Provider, info.ProviderUserID)
	}

	user, err := r.findLinkedUser(ctx, info)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, app.ErrUserNotFound) {
		return nil, err
	}

	user = &app.User{Email: info.Email, Name: info.Name, AvatarURL: info.AvatarURL}
	createErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&app.OAuthAccount{
			UserID:         user.ID,
			Provider:       info.Provider,
			ProviderUserID: info.ProviderUserID,
		}).Error
	})
	if createErr == nil {
		return user, nil
	}

	// lost a race for the same identity
	if existing, err := r.findLinkedUser(ctx, info); err == nil {
		return existing, nil
	}
	return nil, fmt.Errorf("create user for %s: %w", info.Provider, createErr)
}

func (r *UserRepository) findLinkedUser(ctx context.Context, info app.OAuthInfo) (*app.User, error) {
	var account app.OAuthAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_user_id = ?", info.Provider, info.ProviderUserID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app.ErrUserNotFound
		}
		return nil, err
	}
	return r.GetUserByID(ctx, account.UserID)
}

func (r *UserRepository) GetUserByID(ctx context.Context, id uint) (*app.User, error) {
	var user app.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*app.User, error) {
	var user app.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ListUsers(ctx context.Context, skip, limit int) ([]app.User, error) {
	var users []app.User
	err := r.db.WithContext(ctx).Order("id").Offset(skip).Limit(limit).Find(&users).Error
	return users, err
}

// DeleteUser removes a user together with its OAuth accounts and images.
func (r *UserRepository) DeleteUser(ctx context.Context, id uint) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&app.Image{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&app.OAuthAccount{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&app.User{}, id)
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	return deleted, err
}
