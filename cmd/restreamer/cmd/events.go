package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/restreamer/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Event bus commands",
}

var eventsTailJSON bool

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print relay events published to the event bus",
	Long: `Subscribe to the Redis event channel and print relay events as they arrive.

Requires events.redis_url (RESTREAMER_EVENTS_REDIS_URL) to be set.`,
	RunE: runEventsTail,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
	eventsTailCmd.Flags().BoolVar(&eventsTailJSON, "json", false, "print raw JSON messages")
}

func runEventsTail(cmd *cobra.Command, _ []string) error {
	cfg := appConfig.Events
	if cfg.RedisURL == "" {
		return errors.New("events.redis_url is not configured")
	}

	client, err := events.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewRedisPublisher(client, cfg.Channel, 0)
	out := cmd.OutOrStdout()
	fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s\n", bus.Channel())

	return bus.Subscribe(ctx, func(m events.Message) {
		if eventsTailJSON {
			data, err := json.Marshal(m)
			if err == nil {
				fmt.Fprintln(out, string(data))
			}
			return
		}
		line := fmt.Sprintf("%s  %-8s stream=%s state=%s", m.At.Format("15:04:05"), m.Kind, m.StreamID, m.State)
		if m.TotalItems > 1 {
			line += fmt.Sprintf(" item=%d/%d", m.CurrentIndex+1, m.TotalItems)
		}
		if m.CurrentMedia != "" {
			line += " media=" + m.CurrentMedia
		}
		if m.Error != "" {
			line += " error=" + m.Error
		}
		fmt.Fprintln(out, line)
	})
}
