package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	app "imgserv/src/app"
	"imgserv/src/repository"
	"imgserv/src/repository/repotest"
)

func strPtr(s string) *string { return &s }

func TestFindOrCreateUser(t *testing.T) {
	db := repotest.NewDB(t)
	users := repository.NewUserRepository(db)
	ctx := context.Background()

	info := app.OAuthInfo{
		Provider:       "google",
		ProviderUserID: "g-123",
		Email:          "alice@example.com",
		Name:           strPtr("Alice"),
		AvatarURL:      strPtr("https://example.com/a.png"),
	}

	t.Run("creates once", func(t *testing.T) {
		first, err := users.FindOrCreateUser(ctx, info)
		require.NoError(t, err)
		require.NotZero(t, first.ID)

		second, err := users.FindOrCreateUser(ctx, info)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		var userCount, accountCount int64
		require.NoError(t, db.Model(&app.User{}).Count(&userCount).Error)
		require.NoError(t, db.Model(&app.OAuthAccount{}).Count(&accountCount).Error)
		assert.Equal(t, int64(1), userCount)
		assert.Equal(t, int64(1), accountCount)
	})

	t.Run("does not refresh profile", func(t *testing.T) {
		changed := info
		changed.Name = strPtr("Alice Renamed")
		user, err := users.FindOrCreateUser(ctx, changed)
		require.NoError(t, err)
		assert.Equal(t, "Alice", user.DisplayName())
	})

	t.Run("same subject different provider is a different user", func(t *testing.T) {
		other := info
		other.Provider = "test"
		other.Email = "alice+test@example.com"
		user, err := users.FindOrCreateUser(ctx, other)
		require.NoError(t, err)

		original, err := users.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.NotEqual(t, original.ID, user.ID)
	})

	t.Run("failed creation leaves nothing behind", func(t *testing.T) {
		clash := app.OAuthInfo{Provider: "google", ProviderUserID: "g-999", Email: "alice@example.com"}
		_, err := users.FindOrCreateUser(ctx, clash)
		require.Error(t, err)

		var accountCount int64
		require.NoError(t, db.Model(&app.OAuthAccount{}).Where("provider_user_id = ?", "g-999").Count(&accountCount).Error)
		assert.Zero(t, accountCount)
	})

	t.Run("rejects incomplete identity", func(t *testing.T) {
		_, err := users.FindOrCreateUser(ctx, app.OAuthInfo{Provider: "google"})
		assert.Error(t, err)
	})
}

func TestFindOrCreateUserLosesRace(t *testing.T) {
	db := repotest.NewDB(t)
	users := repository.NewUserRepository(db)
	ctx := context.Background()

	info := app.OAuthInfo{Provider: "google", ProviderUserID: "g-race", Email: "race@example.com"}

	// Another login for the same identity commits right after our initial
	// lookup misses, so our own insert hits the unique indexes.
	var winner app.User
	var once sync.Once
	err := db.Callback().Query().After("gorm:query").Register("test:concurrent_login", func(tx *gorm.DB) {
		if tx.Statement.Table != "oauth_accounts" {
			return
		}
		once.Do(func() {
			winner = app.User{Email: info.Email, Name: strPtr("Winner")}
			require.NoError(t, db.Create(&winner).Error)
			require.NoError(t, db.Create(&app.OAuthAccount{
				UserID:         winner.ID,
				Provider:       info.Provider,
				ProviderUserID: info.ProviderUserID,
			}).Error)
		})
	})
	require.NoError(t, err)

	user, err := users.FindOrCreateUser(ctx, info)
	require.NoError(t, err)
	require.NotZero(t, winner.ID)
	assert.Equal(t, winner.ID, user.ID)
	assert.Equal(t, "Winner", user.DisplayName())

	var userCount, accountCount int64
	require.NoError(t, db.Model(&app.User{}).Count(&userCount).Error)
	require.NoError(t, db.Model(&app.OAuthAccount{}).Count(&accountCount).Error)
	assert.Equal(t, int64(1), userCount)
	assert.Equal(t, int64(1), accountCount)
}

func TestGetUserByIDMissing(t *testing.T) {
	users := repository.NewUserRepository(repotest.NewDB(t))

	_, err := users.GetUserByID(context.Background(), 404)
	assert.ErrorIs(t, err, app.ErrUserNotFound)

	_, err = users.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, app.ErrUserNotFound)
}

func TestDeleteUserRemovesDependents(t *testing.T) {
	db := repotest.NewDB(t)
	users := repository.NewUserRepository(db)
	images := repository.NewImageRepository(db)
	ctx := context.Background()

	user, err := users.FindOrCreateUser(ctx, app.OAuthInfo{Provider: "google", ProviderUserID: "g-1", Email: "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, images.CreateImage(ctx, &app.Image{UserID: user.ID, ObjectKey: "originals/a.jpg"}))

	deleted, err := users.DeleteUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = users.GetUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, app.ErrUserNotFound)

	var imageCount, accountCount int64
	require.NoError(t, db.Model(&app.Image{}).Count(&imageCount).Error)
	require.NoError(t, db.Model(&app.OAuthAccount{}).Count(&accountCount).Error)
	assert.Zero(t, imageCount)
	assert.Zero(t, accountCount)

	deleted, err = users.DeleteUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListUsers(t *testing.T) {
	users := repository.NewUserRepository(repotest.NewDB(t))
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		_, err := users.FindOrCreateUser(ctx, app.OAuthInfo{Provider: "google", ProviderUserID: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}

	page, err := users.ListUsers(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "2@example.com", page[0].Email)
}
