package relay

import "errors"

var (
	// ErrStreamActive is returned by Start when a session already exists for the stream.
	ErrStreamActive = errors.New("stream already active")

	// ErrStreamNotActive is returned by Stop when no session exists for the stream.
	ErrStreamNotActive = errors.New("stream not active")

	// ErrNoMedia is returned when a config names neither a primary file nor a playlist.
	ErrNoMedia = errors.New("no video or playlist provided")

	// ErrMediaNotFound is returned when a media file is missing on disk.
	ErrMediaNotFound = errors.New("media file not found")

	// ErrSpawnFailed is returned when the relay process could not be launched.
	ErrSpawnFailed = errors.New("relay process could not be started")

	// ErrNoDestination is returned when no ingest URL can be composed.
	ErrNoDestination = errors.New("no ingest destination")
)
