// ABOUTME: Schedule: the persisted shape of one cron entry owned by a manager's CronScheduler.
// ABOUTME: Grounded on spec.md §3's Schedule tuple and §4.5's due/fire semantics.
package cron

import "time"

// Schedule is one cron entry: fire `message` into its owning manager when
// `cron` (evaluated in `timezone`) comes due.
type Schedule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Cron        string     `json:"cron"`
	Message     string     `json:"message"`
	OneShot     bool       `json:"oneShot"`
	Timezone    string     `json:"timezone"`
	CreatedAt   time.Time  `json:"createdAt"`
	NextFireAt  time.Time  `json:"nextFireAt"`
	LastFiredAt *time.Time `json:"lastFiredAt,omitempty"`
}

// due reports whether s should fire at now: its next fire time has passed
// and it hasn't already fired for that exact occurrence.
func (s Schedule) due(now time.Time) bool {
	if s.NextFireAt.After(now) {
		return false
	}
	return s.LastFiredAt == nil || !s.LastFiredAt.Equal(s.NextFireAt)
}

// location resolves the schedule's timezone, defaulting to UTC for an empty
// or unparseable value rather than failing the whole tick over one bad entry.
func (s Schedule) location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
