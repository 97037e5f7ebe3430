package models

import "path/filepath"

// Video is a media file already present in the owner's media directory.
type Video struct {
	BaseModel

	OwnerID string `gorm:"not null;size:64;index" json:"owner_id"`
	Title   string `gorm:"not null;size:255" json:"title"`

	// Filename is relative to <media_dir>/<owner_id>.
	Filename string `gorm:"not null;size:1024" json:"filename"`

	SizeBytes       int64   `gorm:"default:0" json:"size_bytes"`
	DurationSeconds float64 `gorm:"default:0" json:"duration_seconds,omitempty"`
}

// TableName returns the table name for Video.
func (Video) TableName() string {
	return "videos"
}

// Validate checks required fields and rejects filenames escaping the owner directory.
func (v *Video) Validate() error {
	if v.OwnerID == "" {
		return ErrOwnerRequired
	}
	if v.Title == "" {
		return ErrNameRequired
	}
	if v.Filename == "" {
		return ErrValidation{Field: "filename", Message: "is required"}
	}
	if !filepath.IsLocal(v.Filename) {
		return ErrValidation{Field: "filename", Message: "must be a relative path inside the media directory"}
	}
	return nil
}

// Path returns the absolute location of the file under mediaDir.
func (v *Video) Path(mediaDir string) string {
	return filepath.Join(mediaDir, v.OwnerID, v.Filename)
}

// StorageSummary totals an owner's registered videos.
type StorageSummary struct {
	TotalVideos    int64 `json:"total_videos"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// Playlist is an ordered collection of videos.
type Playlist struct {
	BaseModel

	OwnerID     string `gorm:"not null;size:64;index" json:"owner_id"`
	Name        string `gorm:"not null;size:255" json:"name"`
	Description string `gorm:"size:4096" json:"description,omitempty"`

	Items []PlaylistItem `gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// TableName returns the table name for Playlist.
func (Playlist) TableName() string {
	return "playlists"
}

// Validate checks required fields.
func (p *Playlist) Validate() error {
	if p.OwnerID == "" {
		return ErrOwnerRequired
	}
	if p.Name == "" {
		return ErrNameRequired
	}
	return nil
}

// PlaylistItem places a video at a position within a playlist.
type PlaylistItem struct {
	BaseModel

	PlaylistID ULID  `gorm:"type:varchar(26);not null;uniqueIndex:idx_playlist_position" json:"playlist_id"`
	VideoID    ULID  `gorm:"type:varchar(26);not null;index" json:"video_id"`
	Position   int   `gorm:"not null;uniqueIndex:idx_playlist_position" json:"position"`
	Video      Video `gorm:"foreignKey:VideoID" json:"video,omitempty"`
}

// TableName returns the table name for PlaylistItem.
func (PlaylistItem) TableName() string {
	return "playlist_items"
}
