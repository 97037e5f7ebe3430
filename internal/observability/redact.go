package observability

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/m-mizutani/masq"
)

// Redacted replaces secret values in log output.
const Redacted = "[REDACTED]"

// secretKeys are attribute keys whose values are always redacted.
var secretKeys = map[string]bool{
	"stream_key":    true,
	"streamkey":     true,
	"password":      true,
	"secret":        true,
	"token":         true,
	"authorization": true,
	"api_key":       true,
}

// ingestURLPattern matches an RTMP(S) URL; the final path segment is the stream key.
var ingestURLPattern = regexp.MustCompile(`(rtmps?://[^\s"']+/)([^\s/"']+)`)

// RedactURL hides the stream key in any RTMP or RTMPS URL within s.
func RedactURL(s string) string {
	if !strings.Contains(s, "rtmp") {
		return s
	}
	return ingestURLPattern.ReplaceAllString(s, "${1}"+Redacted)
}

// NewRedactor returns a slog ReplaceAttr function that hides stream keys and
// other credentials: attributes named like secrets, struct fields named or
// tagged as secrets (via masq), and stream keys embedded in ingest URLs.
func NewRedactor() func(groups []string, a slog.Attr) slog.Attr {
	structs := masq.New(
		masq.WithFieldName("StreamKey"),
		masq.WithFieldName("Password"),
		masq.WithFieldName("Secret"),
		masq.WithFieldName("Token"),
		masq.WithTag("secret"),
		masq.WithRegex(regexp.MustCompile(`^rtmps?://`)),
	)

	return func(groups []string, a slog.Attr) slog.Attr {
		if secretKeys[strings.ToLower(a.Key)] {
			return slog.String(a.Key, Redacted)
		}

		switch a.Value.Kind() {
		case slog.KindString:
			if s := a.Value.String(); strings.Contains(s, "rtmp") {
				return slog.String(a.Key, RedactURL(s))
			}
			return a
		case slog.KindAny:
			if err, ok := a.Value.Any().(error); ok {
				return slog.String(a.Key, RedactURL(err.Error()))
			}
			return structs(groups, a)
		default:
			return a
		}
	}
}
