package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the collection once a day at a fixed local time.
type Scheduler struct {
	cron     *cron.Cron
	mu       sync.Mutex
	entryID  cron.EntryID
	location *time.Location
}

// New creates a Scheduler in the given timezone. A run still in progress
// when the next one is due causes that next one to be skipped.
func New(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:     c,
		location: loc,
	}, nil
}

// Schedule sets up the daily run at the given time (HH:MM format).
// If a previous schedule exists, it is replaced.
func (s *Scheduler) Schedule(runTime string, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hour, minute, err := ParseTime(runTime)
	if err != nil {
		return err
	}

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}

	expr := fmt.Sprintf("%d %d * * *", minute, hour)
	entryID, err := s.cron.AddFunc(expr, task)
	if err != nil {
		return fmt.Errorf("adding cron entry: %w", err)
	}

	s.entryID = entryID
	slog.Info("run scheduled", "time", runTime, "cron", expr, "timezone", s.location.String())
	return nil
}

// Next returns when the scheduled run fires next, or the zero time if
// nothing is scheduled or the scheduler is not started.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron scheduler and waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// ParseTime extracts hour and minute from HH:MM format.
func ParseTime(t string) (int, int, error) {
	if len(t) != 5 || t[2] != ':' || !isDigit(t[0]) || !isDigit(t[1]) || !isDigit(t[3]) || !isDigit(t[4]) {
		return 0, 0, fmt.Errorf("invalid time format %q: must be HH:MM", t)
	}

	hour := int(t[0]-'0')*10 + int(t[1]-'0')
	minute := int(t[3]-'0')*10 + int(t[4]-'0')

	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q: hour 0-23, minute 0-59", t)
	}

	return hour, minute, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
