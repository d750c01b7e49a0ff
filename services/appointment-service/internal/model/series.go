package model

import "time"

type SeriesStatus string

const (
	SeriesActive SeriesStatus = "active"
	SeriesPaused SeriesStatus = "paused"
	SeriesEnded  SeriesStatus = "ended"
)

type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// RecurrenceRule describes how a series repeats. Weekday values are ISO
// (1 = Monday .. 7 = Sunday) and only apply to weekly rules.
type RecurrenceRule struct {
	Frequency Frequency
	Interval  int
	Weekdays  []int
	Until     *time.Time
	Count     int
}

// AppointmentSeries is a recurrence template. Occurrences are independent
// Appointment rows linked back via SeriesID; pausing or ending the series
// never retroactively alters already-materialized appointments.
type AppointmentSeries struct {
	ID           string
	WorkspaceID  string
	TrainerID    string
	StudentID    string
	Title        string
	Location     string
	Rule         RecurrenceRule
	StartDate    time.Time // date component only, UTC midnight
	StartMinutes int       // time of day, minutes from midnight
	EndMinutes   int
	Status       SeriesStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OccurrenceWindow combines a candidate date with the series time-of-day
// pair into a concrete UTC range.
func (s AppointmentSeries) OccurrenceWindow(date time.Time) (start, end time.Time) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return day.Add(time.Duration(s.StartMinutes) * time.Minute),
		day.Add(time.Duration(s.EndMinutes) * time.Minute)
}
