package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/restreamer/internal/models"
)

const testMediaDir = "/srv/media"

func createTestVideo(t *testing.T, repo *mediaRepo, owner, filename string) *models.Video {
	t.Helper()
	video := &models.Video{OwnerID: owner, Title: filename, Filename: filename, SizeBytes: 1024}
	require.NoError(t, repo.CreateVideo(context.Background(), video))
	return video
}

func TestMediaRepo_VideoCRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	video := createTestVideo(t, repo, "user-1", "intro.mp4")

	got, err := repo.GetVideo(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, "intro.mp4", got.Filename)
	assert.Equal(t, int64(1024), got.SizeBytes)

	createTestVideo(t, repo, "user-2", "other.mp4")
	list, err := repo.ListVideos(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.DeleteVideo(ctx, video.ID))
	_, err = repo.GetVideo(ctx, video.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteVideo(ctx, video.ID), models.ErrNotFound)
}

func TestMediaRepo_ResolveVideo(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	video := createTestVideo(t, repo, "user-1", "show/episode1.mp4")

	path, err := repo.ResolveVideo(ctx, "user-1", video.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(testMediaDir, "user-1", "show", "episode1.mp4"), path)

	_, err = repo.ResolveVideo(ctx, "user-2", video.ID)
	assert.ErrorIs(t, err, models.ErrMediaNotFound, "videos are scoped to their owner")

	_, err = repo.ResolveVideo(ctx, "user-1", models.NewULID())
	assert.ErrorIs(t, err, models.ErrMediaNotFound)
}

func TestMediaRepo_PlaylistOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	a := createTestVideo(t, repo, "user-1", "a.mp4")
	b := createTestVideo(t, repo, "user-1", "b.mp4")
	c := createTestVideo(t, repo, "user-1", "c.mp4")

	playlist := &models.Playlist{OwnerID: "user-1", Name: "mix"}
	require.NoError(t, repo.CreatePlaylist(ctx, playlist, []models.ULID{c.ID, a.ID, b.ID}))

	got, err := repo.GetPlaylist(ctx, playlist.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	assert.Equal(t, "c.mp4", got.Items[0].Video.Filename)
	assert.Equal(t, "a.mp4", got.Items[1].Video.Filename)
	assert.Equal(t, "b.mp4", got.Items[2].Video.Filename)

	paths, err := repo.ResolvePlaylist(ctx, "user-1", playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(testMediaDir, "user-1", "c.mp4"),
		filepath.Join(testMediaDir, "user-1", "a.mp4"),
		filepath.Join(testMediaDir, "user-1", "b.mp4"),
	}, paths)
}

func TestMediaRepo_PlaylistRepeatsVideo(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	a := createTestVideo(t, repo, "user-1", "a.mp4")
	playlist := &models.Playlist{OwnerID: "user-1", Name: "twice"}
	require.NoError(t, repo.CreatePlaylist(ctx, playlist, []models.ULID{a.ID, a.ID}))

	paths, err := repo.ResolvePlaylist(ctx, "user-1", playlist.ID)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestMediaRepo_CreatePlaylist_UnknownVideo(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	foreign := createTestVideo(t, repo, "user-2", "theirs.mp4")

	err := repo.CreatePlaylist(ctx, &models.Playlist{OwnerID: "user-1", Name: "bad"}, []models.ULID{foreign.ID})
	assert.ErrorIs(t, err, models.ErrMediaNotFound)

	list, err := repo.ListPlaylists(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMediaRepo_ResolvePlaylist_Errors(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	empty := &models.Playlist{OwnerID: "user-1", Name: "empty"}
	require.NoError(t, repo.CreatePlaylist(ctx, empty, nil))

	_, err := repo.ResolvePlaylist(ctx, "user-1", empty.ID)
	assert.ErrorIs(t, err, models.ErrEmptyPlaylist)

	_, err = repo.ResolvePlaylist(ctx, "user-1", models.NewULID())
	assert.ErrorIs(t, err, models.ErrMediaNotFound)

	_, err = repo.ResolvePlaylist(ctx, "user-2", empty.ID)
	assert.ErrorIs(t, err, models.ErrMediaNotFound)
}

func TestMediaRepo_DeleteVideoShrinksPlaylist(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	a := createTestVideo(t, repo, "user-1", "a.mp4")
	b := createTestVideo(t, repo, "user-1", "b.mp4")
	playlist := &models.Playlist{OwnerID: "user-1", Name: "pair"}
	require.NoError(t, repo.CreatePlaylist(ctx, playlist, []models.ULID{a.ID, b.ID}))

	require.NoError(t, repo.DeleteVideo(ctx, a.ID))

	paths, err := repo.ResolvePlaylist(ctx, "user-1", playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(testMediaDir, "user-1", "b.mp4")}, paths)
}

func TestMediaRepo_DeletePlaylist(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	a := createTestVideo(t, repo, "user-1", "a.mp4")
	playlist := &models.Playlist{OwnerID: "user-1", Name: "gone"}
	require.NoError(t, repo.CreatePlaylist(ctx, playlist, []models.ULID{a.ID}))

	require.NoError(t, repo.DeletePlaylist(ctx, playlist.ID))
	_, err := repo.GetPlaylist(ctx, playlist.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	var items int64
	require.NoError(t, db.Model(&models.PlaylistItem{}).Count(&items).Error)
	assert.Zero(t, items)

	// The video itself survives.
	_, err = repo.GetVideo(ctx, a.ID)
	require.NoError(t, err)
}

func playlistFilenames(t *testing.T, repo *mediaRepo, id models.ULID) ([]string, []int) {
	t.Helper()
	got, err := repo.GetPlaylist(context.Background(), id)
	require.NoError(t, err)
	names := make([]string, 0, len(got.Items))
	positions := make([]int, 0, len(got.Items))
	for _, item := range got.Items {
		names = append(names, item.Video.Filename)
		positions = append(positions, item.Position)
	}
	return names, positions
}

func TestMediaRepo_AddPlaylistItem(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	a := createTestVideo(t, repo, "user-1", "a.mp4")
	b := createTestVideo(t, repo, "user-1", "b.mp4")
	playlist := &models.Playlist{OwnerID: "user-1", Name: "grow"}
	require.NoError(t, repo.CreatePlaylist(ctx, playlist, []models.ULID{a.ID}))

	added, err := repo.AddPlaylistItem(ctx, playlist.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddPlaylistItem(ctx, playlist.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, added, "a video already in the playlist is not appended again")

	names, positions := playlistFilenames(t, repo, playlist.ID)
	assert.Equal(t, []string{"a.mp4", "b.mp4"}, names)
	assert.Equal(t, []int{0, 1}, positions)
}

func TestMediaRepo_AddPlaylistItem_Errors(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	mine := createTestVideo(t, repo, "user-1", "mine.mp4")
	foreign := createTestVideo(t, repo, "user-2", "theirs.mp4")
	playlist := &models.Playlist{OwnerID: "user-1", Name: "guarded"}
	require.NoError(t, repo.CreatePlaylist(ctx, playlist, nil))

	_, err := repo.AddPlaylistItem(ctx, models.NewULID(), mine.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.AddPlaylistItem(ctx, playlist.ID, foreign.ID)
	assert.ErrorIs(t, err, models.ErrMediaNotFound)

	_, err = repo.AddPlaylistItem(ctx, playlist.ID, models.NewULID())
	assert.ErrorIs(t, err, models.ErrMediaNotFound)

	names, _ := playlistFilenames(t, repo, playlist.ID)
	assert.Empty(t, names)
}

func TestMediaRepo_RemovePlaylistItem(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	a := createTestVideo(t, repo, "user-1", "a.mp4")
	b := createTestVideo(t, repo, "user-1", "b.mp4")
	c := createTestVideo(t, repo, "user-1", "c.mp4")
	playlist := &models.Playlist{OwnerID: "user-1", Name: "shrink"}
	require.NoError(t, repo.CreatePlaylist(ctx, playlist, []models.ULID{a.ID, b.ID, c.ID}))

	require.NoError(t, repo.RemovePlaylistItem(ctx, playlist.ID, a.ID))

	names, positions := playlistFilenames(t, repo, playlist.ID)
	assert.Equal(t, []string{"b.mp4", "c.mp4"}, names)
	assert.Equal(t, []int{0, 1}, positions)

	// Positions are contiguous again, so the next append lands at the end.
	added, err := repo.AddPlaylistItem(ctx, playlist.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, added)
	names, positions = playlistFilenames(t, repo, playlist.ID)
	assert.Equal(t, []string{"b.mp4", "c.mp4", "a.mp4"}, names)
	assert.Equal(t, []int{0, 1, 2}, positions)

	assert.ErrorIs(t, repo.RemovePlaylistItem(ctx, playlist.ID, models.NewULID()), models.ErrNotFound)
}

func TestMediaRepo_DeleteVideoRenumbersPlaylist(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	a := createTestVideo(t, repo, "user-1", "a.mp4")
	b := createTestVideo(t, repo, "user-1", "b.mp4")
	c := createTestVideo(t, repo, "user-1", "c.mp4")
	playlist := &models.Playlist{OwnerID: "user-1", Name: "gap"}
	require.NoError(t, repo.CreatePlaylist(ctx, playlist, []models.ULID{a.ID, b.ID, c.ID}))

	require.NoError(t, repo.DeleteVideo(ctx, b.ID))

	names, positions := playlistFilenames(t, repo, playlist.ID)
	assert.Equal(t, []string{"a.mp4", "c.mp4"}, names)
	assert.Equal(t, []int{0, 1}, positions)
}

func TestMediaRepo_StorageSummary(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMediaRepository(db, testMediaDir)
	ctx := context.Background()

	empty, err := repo.StorageSummary(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.StorageSummary{}, empty)

	createTestVideo(t, repo, "user-1", "a.mp4")
	big := &models.Video{OwnerID: "user-1", Title: "big", Filename: "big.mp4", SizeBytes: 4096}
	require.NoError(t, repo.CreateVideo(ctx, big))
	createTestVideo(t, repo, "user-2", "other.mp4")

	summary, err := repo.StorageSummary(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalVideos)
	assert.Equal(t, int64(1024+4096), summary.TotalSizeBytes)
}
