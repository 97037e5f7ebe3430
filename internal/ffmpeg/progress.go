package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Progress represents FFmpeg progress information.
type Progress struct {
	Frame      int64         `json:"frame"`
	FPS        float64       `json:"fps"`
	Bitrate    string        `json:"bitrate"`
	TotalSize  int64         `json:"total_size"`
	Time       time.Duration `json:"time"`
	Speed      float64       `json:"speed"`
	DupFrames  int64         `json:"dup_frames"`
	DropFrames int64         `json:"drop_frames"`
}

// Regex patterns for FFmpeg's classic stats line and its -progress key=value output.
var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+\s*\w+/s)`)
	sizeRe    = regexp.MustCompile(`(?:^|\s)(?:total_)?size=\s*(\d+)`)
	timeRe    = regexp.MustCompile(`(?:^|\s)(?:out_)?time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
	dupRe     = regexp.MustCompile(`dup(?:_frames)?=\s*(\d+)`)
	dropRe    = regexp.MustCompile(`drop(?:_frames)?=\s*(\d+)`)
)

// progressKeys are the keys FFmpeg writes with -progress.
var progressKeys = []string{"progress=", "frame=", "fps=", "out_time", "total_size=", "bitrate=", "speed="}

// ParseProgressLine merges any progress fields found in line into p and
// reports whether the line carried progress at all.
func ParseProgressLine(line string, p *Progress) bool {
	found := false

	if matches := frameRe.FindStringSubmatch(line); len(matches) > 1 {
		p.Frame, _ = strconv.ParseInt(matches[1], 10, 64)
		found = true
	}

	if matches := fpsRe.FindStringSubmatch(line); len(matches) > 1 {
		p.FPS, _ = strconv.ParseFloat(matches[1], 64)
		found = true
	}

	if matches := bitrateRe.FindStringSubmatch(line); len(matches) > 1 {
		p.Bitrate = strings.ReplaceAll(matches[1], " ", "")
		found = true
	}

	if matches := sizeRe.FindStringSubmatch(line); len(matches) > 1 {
		p.TotalSize, _ = strconv.ParseInt(matches[1], 10, 64)
		found = true
	}

	if matches := timeRe.FindStringSubmatch(line); len(matches) > 4 {
		hours, _ := strconv.Atoi(matches[1])
		mins, _ := strconv.Atoi(matches[2])
		secs, _ := strconv.Atoi(matches[3])
		frac, _ := strconv.ParseFloat("0."+matches[4], 64)
		p.Time = time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute +
			time.Duration(secs)*time.Second +
			time.Duration(frac*float64(time.Second))
		found = true
	}

	if matches := speedRe.FindStringSubmatch(line); len(matches) > 1 {
		p.Speed, _ = strconv.ParseFloat(matches[1], 64)
		found = true
	}

	if matches := dupRe.FindStringSubmatch(line); len(matches) > 1 {
		p.DupFrames, _ = strconv.ParseInt(matches[1], 10, 64)
		found = true
	}

	if matches := dropRe.FindStringSubmatch(line); len(matches) > 1 {
		p.DropFrames, _ = strconv.ParseInt(matches[1], 10, 64)
		found = true
	}

	return found
}

// IsOutputStarted reports whether line shows FFmpeg has opened its output and is
// transmitting: either the "Output #0" banner or any -progress report.
func IsOutputStarted(line string) bool {
	if strings.Contains(line, "Output #0") {
		return true
	}
	trimmed := strings.TrimSpace(line)
	for _, k := range progressKeys {
		if strings.HasPrefix(trimmed, k) {
			return true
		}
	}
	return false
}
