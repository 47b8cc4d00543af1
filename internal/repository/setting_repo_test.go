package repository

import (
	"context"
	"testing"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingRepo_GetSet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingRepository(db)
	ctx := context.Background()

	missing, err := repo.Get(ctx, models.SettingOptimizedVideosDir)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Set(ctx, models.SettingOptimizedVideosDir, "/srv/optimized"))
	require.NoError(t, repo.Set(ctx, models.SettingOptimizedVideosDir, "/mnt/nas/optimized"))

	found, err := repo.Get(ctx, models.SettingOptimizedVideosDir)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "/mnt/nas/optimized", found.Value)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSettingRepo_SetIfAbsent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingRepository(db)
	ctx := context.Background()

	stored, err := repo.SetIfAbsent(ctx, models.SettingOriginalVideosDir, "/srv/original")
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = repo.SetIfAbsent(ctx, models.SettingOriginalVideosDir, "/elsewhere")
	require.NoError(t, err)
	assert.False(t, stored)

	found, err := repo.Get(ctx, models.SettingOriginalVideosDir)
	require.NoError(t, err)
	assert.Equal(t, "/srv/original", found.Value)
}
