package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/provider"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]Appointment

	// txDelay stretches every transaction to widen lock windows
	txDelay time.Duration
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[uuid.UUID]Appointment)}
}

func (m *memRepo) put(a Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = a
}

func (m *memRepo) all() []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Appointment, 0, len(m.rows))
	for _, a := range m.rows {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) ExistsForPatient(_ context.Context, id, patientID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	return ok && a.PatientID == patientID, nil
}

func (m *memRepo) FindConflicting(_ context.Context, providerID uuid.UUID, w Window, excludeID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.rows {
		if a.ProviderID != providerID || a.Status == StatusCancelled || a.ID == excludeID {
			continue
		}
		if w.Contains(a.ScheduledAt) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) InsertAppointment(_ context.Context, a Appointment) error {
	m.put(a)
	return nil
}

func (m *memRepo) UpdateAppointment(_ context.Context, a Appointment, expected Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[a.ID]
	if !ok || cur.Status != expected {
		return ErrStaleAppointment
	}
	m.rows[a.ID] = a
	return nil
}

func (m *memRepo) FindScheduledBefore(_ context.Context, before time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range m.all() {
		if a.Status == StatusScheduled && a.ScheduledAt.Before(before) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) FindScheduledBetween(_ context.Context, from, to time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range m.all() {
		if a.Status == StatusScheduled && !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) MarkCompleted(_ context.Context, ids []uuid.UUID, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		a, ok := m.rows[id]
		if !ok || a.Status != StatusScheduled {
			continue
		}
		a.Status = StatusCompleted
		a.UpdatedAt = now
		m.rows[id] = a
		n++
	}
	return n, nil
}

func (m *memRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if m.txDelay > 0 {
		time.Sleep(m.txDelay)
	}
	return fn(ctx, m)
}

type memProviders struct {
	rows map[uuid.UUID]provider.Projection
}

func (p *memProviders) GetProvider(_ context.Context, id uuid.UUID) (*provider.Projection, error) {
	row, ok := p.rows[id]
	if !ok {
		return nil, provider.ErrProviderNotFound
	}
	return &row, nil
}

func (p *memProviders) ListProviders(_ context.Context, specialty string) ([]provider.Projection, error) {
	var out []provider.Projection
	for _, row := range p.rows {
		if specialty == "" || strings.EqualFold(row.Specialty, specialty) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
