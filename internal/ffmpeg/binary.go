// Package ffmpeg provides FFmpeg binary discovery, command building and
// process supervision for RTMP relays.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EnvBinary names the environment variable that points at an ffmpeg binary.
const EnvBinary = "RESTREAMER_FFMPEG_BINARY"

// BinaryInfo contains information about the FFmpeg installation.
type BinaryInfo struct {
	FFmpegPath    string `json:"ffmpeg_path"`
	Version       string `json:"version"`
	MajorVersion  int    `json:"major_version"`
	MinorVersion  int    `json:"minor_version"`
	BuildDate     string `json:"build_date,omitempty"`
	Configuration string `json:"configuration,omitempty"`
}

// SupportsMinVersion reports whether the detected version is at least major.minor.
func (info *BinaryInfo) SupportsMinVersion(major, minor int) bool {
	if info.MajorVersion != major {
		return info.MajorVersion > major
	}
	return info.MinorVersion >= minor
}

// BinaryDetector handles detection and caching of the FFmpeg binary.
type BinaryDetector struct {
	configured string

	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
}

// NewBinaryDetector creates a detector. A non-empty configured path takes
// precedence over the environment and PATH lookup.
func NewBinaryDetector(configured string) *BinaryDetector {
	return &BinaryDetector{
		configured: configured,
		cacheTTL:   5 * time.Minute,
	}
}

// WithCacheTTL sets the cache TTL for binary detection.
func (d *BinaryDetector) WithCacheTTL(ttl time.Duration) *BinaryDetector {
	d.cacheTTL = ttl
	return d
}

// Detect locates FFmpeg and reads its version.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	path, err := FindBinary("ffmpeg", d.configured)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, "-version")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}

	info, err := ParseVersion(string(output))
	if err != nil {
		return nil, err
	}
	info.FFmpegPath = path

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear clears the cached binary information.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}

var versionRe = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// ParseVersion parses the output of `ffmpeg -version`.
func ParseVersion(output string) (*BinaryInfo, error) {
	info := &BinaryInfo{}

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "ffmpeg version"):
			// "ffmpeg version 6.0 Copyright...", "ffmpeg version n6.0-2-g..."
			parts := strings.Fields(line)
			if len(parts) >= 3 {
				info.Version = parts[2]
				if m := versionRe.FindStringSubmatch(parts[2]); len(m) >= 3 {
					info.MajorVersion, _ = strconv.Atoi(m[1])
					info.MinorVersion, _ = strconv.Atoi(m[2])
				}
			}
		case strings.HasPrefix(line, "built with"):
			info.BuildDate = strings.TrimPrefix(line, "built with ")
		case strings.HasPrefix(line, "configuration:"):
			info.Configuration = strings.TrimPrefix(line, "configuration: ")
		}
	}

	if info.Version == "" {
		return nil, fmt.Errorf("failed to parse ffmpeg version")
	}
	return info, nil
}

// FindBinary searches for an executable in this order: the configured path,
// the RESTREAMER_FFMPEG_BINARY environment variable, ./<name>, then PATH.
func FindBinary(name, configured string) (string, error) {
	for _, candidate := range []string{configured, os.Getenv(EnvBinary), "./" + name} {
		if candidate != "" && isExecutable(candidate) {
			return candidate, nil
		}
	}

	// LookPath verifies executability itself; it also resolves bare names.
	if configured != "" && !strings.ContainsRune(configured, os.PathSeparator) {
		if path, err := exec.LookPath(configured); err == nil {
			return path, nil
		}
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// isExecutable checks if a file exists and is executable by the current user.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
