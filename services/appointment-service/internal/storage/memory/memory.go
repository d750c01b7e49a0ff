// Package memory is the in-memory Store used by service-level tests. It
// mirrors the Postgres semantics that matter to callers: transactional
// all-or-nothing writes, half-open overlap counting, and set-based sweep
// updates.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/traindesk/traindesk/services/appointment-service/internal/conflict"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/outbox"
	"github.com/traindesk/traindesk/services/appointment-service/internal/policy"
	"github.com/traindesk/traindesk/services/appointment-service/internal/reminder"
	"github.com/traindesk/traindesk/services/appointment-service/internal/storage"
)

type data struct {
	appointments map[string]model.Appointment
	series       map[string]model.AppointmentSeries
	reminders    map[string]model.Reminder
	idemKeys     map[string][]byte
	events       []outbox.Event
}

func (d *data) clone() *data {
	c := &data{
		appointments: make(map[string]model.Appointment, len(d.appointments)),
		series:       make(map[string]model.AppointmentSeries, len(d.series)),
		reminders:    make(map[string]model.Reminder, len(d.reminders)),
		idemKeys:     make(map[string][]byte, len(d.idemKeys)),
		events:       append([]outbox.Event(nil), d.events...),
	}
	for k, v := range d.appointments {
		c.appointments[k] = v
	}
	for k, v := range d.series {
		c.series[k] = v
	}
	for k, v := range d.reminders {
		c.reminders[k] = v
	}
	for k, v := range d.idemKeys {
		c.idemKeys[k] = v
	}
	return c
}

type Store struct {
	mu       sync.Mutex
	data     *data
	policies map[string]policy.Policy
}

var (
	_ storage.Store           = (*Store)(nil)
	_ reminder.Repo           = (*Store)(nil)
	_ reminder.PolicyProvider = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		data: &data{
			appointments: map[string]model.Appointment{},
			series:       map[string]model.AppointmentSeries{},
			reminders:    map[string]model.Reminder{},
			idemKeys:     map[string][]byte{},
		},
		policies: map[string]policy.Policy{},
	}
}

// SetPolicy installs the reminder policy served for a workspace.
func (s *Store) SetPolicy(workspaceID string, p policy.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[workspaceID] = p
}

func (s *Store) ReminderPolicy(_ context.Context, workspaceID string) (policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policies[workspaceID], nil
}

// Events returns the outbox events recorded by committed transactions.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.data.events...)
}

// InTx runs fn against a snapshot; the snapshot replaces the live data
// only when fn succeeds.
func (s *Store) InTx(_ context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&memTx{d: snapshot}); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, workspaceID, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return apptRepo{d: s.data}.Get(ctx, workspaceID, id)
}

func (s *Store) ListAppointments(_ context.Context, f storage.ListFilter) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Appointment
	for _, appt := range s.data.appointments {
		if !matches(appt, f) {
			continue
		}
		out = append(out, appt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) GetSeries(ctx context.Context, workspaceID, id string) (model.AppointmentSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seriesRepo{d: s.data}.Get(ctx, workspaceID, id)
}

func matches(appt model.Appointment, f storage.ListFilter) bool {
	if appt.WorkspaceID != f.WorkspaceID {
		return false
	}
	if f.TrainerID != "" && appt.TrainerID != f.TrainerID {
		return false
	}
	if f.StudentID != "" && appt.StudentID != f.StudentID {
		return false
	}
	if f.SeriesID != "" && appt.SeriesID != f.SeriesID {
		return false
	}
	if f.Status != "" && appt.Status != f.Status {
		return false
	}
	if f.From != nil && !appt.EndTime.After(*f.From) {
		return false
	}
	if f.To != nil && !appt.StartTime.Before(*f.To) {
		return false
	}
	return true
}

type memTx struct {
	d *data
}

func (t *memTx) Appointments() storage.AppointmentRepo { return apptRepo{d: t.d} }
func (t *memTx) Series() storage.SeriesRepo            { return seriesRepo{d: t.d} }
func (t *memTx) Reminders() reminder.SyncRepo          { return remRepo{d: t.d} }
func (t *memTx) Outbox() storage.OutboxWriter          { return eventRepo{d: t.d} }
func (t *memTx) Idempotency() storage.IdempotencyRepo  { return idemRepo{d: t.d} }

func (t *memTx) LockParticipants(context.Context, string, string, string) error {
	// the store mutex already serializes transactions
	return nil
}

type apptRepo struct {
	d *data
}

func (r apptRepo) Insert(_ context.Context, appt model.Appointment) error {
	r.d.appointments[appt.ID] = appt
	return nil
}

func (r apptRepo) Get(_ context.Context, workspaceID, id string) (model.Appointment, error) {
	appt, ok := r.d.appointments[id]
	if !ok || appt.WorkspaceID != workspaceID {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, nil
}

func (r apptRepo) GetForUpdate(ctx context.Context, workspaceID, id string) (model.Appointment, error) {
	return r.Get(ctx, workspaceID, id)
}

func (r apptRepo) Update(_ context.Context, appt model.Appointment) error {
	if _, ok := r.d.appointments[appt.ID]; !ok {
		return model.ErrNotFound
	}
	r.d.appointments[appt.ID] = appt
	return nil
}

func (r apptRepo) CountOverlapping(_ context.Context, f conflict.OverlapFilter) (int, error) {
	n := 0
	for _, appt := range r.d.appointments {
		if appt.WorkspaceID != f.WorkspaceID || appt.Status == model.AppointmentCancelled {
			continue
		}
		if appt.ID == f.IgnoreAppointmentID {
			continue
		}
		if appt.TrainerID != f.TrainerID && appt.StudentID != f.StudentID {
			continue
		}
		if conflict.Overlaps(appt.StartTime, appt.EndTime, f.Start, f.End) {
			n++
		}
	}
	return n, nil
}

func (r apptRepo) DeletePlannedFutureBySeries(_ context.Context, workspaceID, seriesID string, from time.Time) ([]string, error) {
	var ids []string
	for id, appt := range r.d.appointments {
		if appt.WorkspaceID != workspaceID || appt.SeriesID != seriesID {
			continue
		}
		if appt.Status != model.AppointmentPlanned || appt.IsException {
			continue
		}
		if appt.StartTime.Before(from) {
			continue
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		delete(r.d.appointments, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type seriesRepo struct {
	d *data
}

func (r seriesRepo) Insert(_ context.Context, s model.AppointmentSeries) error {
	r.d.series[s.ID] = s
	return nil
}

func (r seriesRepo) Get(_ context.Context, workspaceID, id string) (model.AppointmentSeries, error) {
	s, ok := r.d.series[id]
	if !ok || s.WorkspaceID != workspaceID {
		return model.AppointmentSeries{}, model.ErrNotFound
	}
	return s, nil
}

func (r seriesRepo) GetForUpdate(ctx context.Context, workspaceID, id string) (model.AppointmentSeries, error) {
	return r.Get(ctx, workspaceID, id)
}

func (r seriesRepo) Update(_ context.Context, s model.AppointmentSeries) error {
	if _, ok := r.d.series[s.ID]; !ok {
		return model.ErrNotFound
	}
	r.d.series[s.ID] = s
	return nil
}

type eventRepo struct {
	d *data
}

func (r eventRepo) Insert(_ context.Context, evt outbox.Event) error {
	r.d.events = append(r.d.events, evt)
	return nil
}

type idemRepo struct {
	d *data
}

func (r idemRepo) Claim(_ context.Context, workspaceID, key string) ([]byte, bool, error) {
	k := workspaceID + "\x00" + key
	stored, ok := r.d.idemKeys[k]
	if ok {
		return stored, len(stored) > 0, nil
	}
	r.d.idemKeys[k] = nil
	return nil, false, nil
}

func (r idemRepo) Finalize(_ context.Context, workspaceID, key string, response []byte) error {
	r.d.idemKeys[workspaceID+"\x00"+key] = response
	return nil
}
