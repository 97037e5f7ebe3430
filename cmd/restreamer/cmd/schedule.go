package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/scheduler"
	"github.com/jmylchreest/restreamer/pkg/format"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule utilities",
}

var scheduleNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Preview the next runs of a recurrence",
	Long: `Preview the next runs of a recurrence without storing it.

Examples:
  restreamer schedule next --type daily --time 09:00 --tz Europe/London
  restreamer schedule next --type weekly --time 18:30 --days 1,3,5
  restreamer schedule next --type cron --cron "*/15 9-17 * * 1-5" --count 10
  restreamer schedule next --type once --at 2025-06-01T20:00:00Z`,
	RunE: runScheduleNext,
}

var scheduleNextOpts struct {
	kind     string
	at       string
	time     string
	days     string
	cron     string
	timezone string
	count    int
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleNextCmd)

	f := scheduleNextCmd.Flags()
	f.StringVar(&scheduleNextOpts.kind, "type", "daily", "recurrence type (once, daily, weekly, cron)")
	f.StringVar(&scheduleNextOpts.at, "at", "", "RFC 3339 instant of a once recurrence")
	f.StringVar(&scheduleNextOpts.time, "time", "", "HH:MM time of day for daily and weekly recurrences")
	f.StringVar(&scheduleNextOpts.days, "days", "", "comma separated weekdays for weekly recurrences, 0=Sunday")
	f.StringVar(&scheduleNextOpts.cron, "cron", "", "five-field cron expression")
	f.StringVar(&scheduleNextOpts.timezone, "tz", "", "IANA timezone (default UTC)")
	f.IntVar(&scheduleNextOpts.count, "count", 5, "number of runs to show")
}

func runScheduleNext(cmd *cobra.Command, _ []string) error {
	opts := scheduleNextOpts
	def := &models.StreamSchedule{
		Kind:      models.ScheduleKind(opts.kind),
		TimeOfDay: opts.time,
		Days:      opts.days,
		CronExpr:  opts.cron,
		Timezone:  opts.timezone,
	}
	if opts.at != "" {
		at, err := time.Parse(time.RFC3339, opts.at)
		if err != nil {
			return fmt.Errorf("parsing --at: %w", err)
		}
		def.ScheduledAt = &at
	}
	loc := time.UTC
	if opts.timezone != "" {
		l, err := time.LoadLocation(opts.timezone)
		if err != nil {
			return fmt.Errorf("unknown timezone %q: %w", opts.timezone, err)
		}
		loc = l
	}

	r, err := scheduler.RecurrenceOf(def)
	if err != nil {
		return err
	}

	now := time.Now()
	runs := scheduler.NextRuns(r, now, max(opts.count, 1))

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, format.Schedule(opts.kind, def.TimeOfDay, def.Days, def.CronExpr, def.ScheduledAt, def.Timezone))
	if len(runs) == 0 {
		fmt.Fprintln(out, "  no upcoming runs")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(out, "  %s  (%s)\n", run.In(loc).Format("Mon 2006-01-02 15:04 MST"), format.RelativeTime(run, now))
	}
	return nil
}
