package relay

import (
	"fmt"
	"strings"
)

// Platform identifies a live-streaming destination.
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformFacebook Platform = "facebook"
	PlatformTwitch   Platform = "twitch"
	PlatformCustom   Platform = "custom"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformYouTube, PlatformFacebook, PlatformTwitch, PlatformCustom:
		return true
	}
	return false
}

// Quality is a named output tier.
type Quality string

const (
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
	Quality4K    Quality = "4k"
)

// DefaultQuality is used when a config names no tier or an unknown one.
const DefaultQuality = Quality1080p

// Valid reports whether q is a known quality tier.
func (q Quality) Valid() bool {
	_, ok := qualityProfiles[q]
	return ok
}

// PlaybackMode controls how a sequence of media is played.
type PlaybackMode string

const (
	// ModeLoop repeats a single file inside the relay process, or wraps a playlist forever.
	ModeLoop PlaybackMode = "loop"
	// ModeSequential plays a playlist in order.
	ModeSequential PlaybackMode = "sequential"
	// ModeRandom plays a playlist in an order shuffled once per session.
	ModeRandom PlaybackMode = "random"
)

// Valid reports whether m is a known playback mode.
func (m PlaybackMode) Valid() bool {
	switch m {
	case ModeLoop, ModeSequential, ModeRandom:
		return true
	}
	return false
}

// QualityProfile holds the encode parameters for a quality tier.
type QualityProfile struct {
	Name             Quality
	Width            int
	Height           int
	VideoBitrateKbps int
	AudioBitrateKbps int
}

// Size returns the profile's frame size in the W:H form used by ffmpeg filters.
func (p QualityProfile) Size() string {
	return fmt.Sprintf("%d:%d", p.Width, p.Height)
}

// VideoBitrate returns the video bitrate as an ffmpeg rate string.
func (p QualityProfile) VideoBitrate() string {
	return fmt.Sprintf("%dk", p.VideoBitrateKbps)
}

// BufferSize returns the rate-control buffer, twice the video bitrate.
func (p QualityProfile) BufferSize() string {
	return fmt.Sprintf("%dk", p.VideoBitrateKbps*2)
}

// AudioBitrate returns the audio bitrate as an ffmpeg rate string.
func (p QualityProfile) AudioBitrate() string {
	return fmt.Sprintf("%dk", p.AudioBitrateKbps)
}

var qualityProfiles = map[Quality]QualityProfile{
	Quality720p:  {Name: Quality720p, Width: 1280, Height: 720, VideoBitrateKbps: 2500, AudioBitrateKbps: 128},
	Quality1080p: {Name: Quality1080p, Width: 1920, Height: 1080, VideoBitrateKbps: 4500, AudioBitrateKbps: 192},
	Quality4K:    {Name: Quality4K, Width: 3840, Height: 2160, VideoBitrateKbps: 15000, AudioBitrateKbps: 320},
}

var ingestURLs = map[Platform]string{
	PlatformYouTube:  "rtmp://a.rtmp.youtube.com/live2",
	PlatformFacebook: "rtmps://live-api-s.facebook.com:443/rtmp",
	PlatformTwitch:   "rtmp://live.twitch.tv/app",
}

// ProfileFor returns the profile for q, falling back to DefaultQuality.
func ProfileFor(q Quality) QualityProfile {
	if p, ok := qualityProfiles[q]; ok {
		return p
	}
	return qualityProfiles[DefaultQuality]
}

// IngestURL returns the default ingest endpoint for a platform.
// Custom platforms have none and must supply an override.
func IngestURL(p Platform) (string, bool) {
	u, ok := ingestURLs[p]
	return u, ok
}

// Destination composes the full publish URL for a platform and stream key.
// A non-empty override replaces the platform's default endpoint.
func Destination(p Platform, override, streamKey string) (string, error) {
	base := strings.TrimSpace(override)
	if base == "" {
		var ok bool
		base, ok = IngestURL(p)
		if !ok {
			return "", fmt.Errorf("%w: platform %q requires an rtmp_url", ErrNoDestination, p)
		}
	}
	return strings.TrimRight(base, "/") + "/" + streamKey, nil
}
