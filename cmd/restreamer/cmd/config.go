package cmd

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/restreamer/internal/config"
	"github.com/jmylchreest/restreamer/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing restreamer configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format.

Values come from the built-in defaults, the config file, dotenv files and
environment variables. Redirect the output to create a configuration
template:

  restreamer config dump > config.yaml

Environment variables use the RESTREAMER_ prefix and underscores for nesting.
Example: server.port -> RESTREAMER_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// secretKeys are redacted in dumps.
var secretKeys = []string{"dsn", "redis_url"}

// toMap converts a struct to a map, formatting durations for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := range val.NumField() {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("yaml")
		if key == "" {
			key = fieldType.Tag.Get("mapstructure")
		}
		if key == "" {
			key = strings.ToLower(fieldType.Name)
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case config.Duration:
			result[key] = v.String()
		case string:
			if isSecret(key) && v != "" {
				result[key] = redactDSN(v)
			} else {
				result[key] = v
			}
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func isSecret(key string) bool {
	for _, s := range secretKeys {
		if key == s {
			return true
		}
	}
	return false
}

var dsnPassword = regexp.MustCompile(`(password=)[^\s]+`)

// redactDSN hides credentials in URL and key=value connection strings.
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	return dsnPassword.ReplaceAllString(dsn, "${1}xxxxx")
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	yamlData, err := yaml.Marshal(toMap(appConfig))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# restreamer configuration")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Duration format: 30s, 5m, 1h, 90d")
	fmt.Fprintln(out, "# Connection strings are shown with credentials redacted.")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Environment variable overrides:")
	fmt.Fprintln(out, "#   RESTREAMER_SERVER_HOST, RESTREAMER_SERVER_PORT")
	fmt.Fprintln(out, "#   RESTREAMER_DATABASE_DRIVER, RESTREAMER_DATABASE_DSN")
	fmt.Fprintln(out, "#   RESTREAMER_STORAGE_MEDIA_DIR, RESTREAMER_RELAY_FFMPEG_PATH")
	fmt.Fprintln(out, "#   RESTREAMER_EVENTS_REDIS_URL")
	fmt.Fprintln(out, "")
	fmt.Fprint(out, string(yamlData))

	return nil
}
