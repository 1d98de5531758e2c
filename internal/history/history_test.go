package history

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/eventbus"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]Record
}

func newMemRepo() *memRepo { return &memRepo{rows: map[uuid.UUID]Record{}} }

func (m *memRepo) Upsert(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = r
	return nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &r, nil
}

func (m *memRepo) filter(keep func(Record) bool) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Record{}
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	return out
}

func (m *memRepo) ListAll(context.Context) ([]Record, error) {
	return m.filter(func(Record) bool { return true }), nil
}

func (m *memRepo) ListByPatient(_ context.Context, id uuid.UUID) ([]Record, error) {
	return m.filter(func(r Record) bool { return r.PatientID == id }), nil
}

func (m *memRepo) ListByProvider(_ context.Context, id uuid.UUID) ([]Record, error) {
	return m.filter(func(r Record) bool { return r.ProviderID == id }), nil
}

func (m *memRepo) snapshot() map[uuid.UUID]Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]Record, len(m.rows))
	for k, v := range m.rows {
		out[k] = v
	}
	return out
}

func randomEvent(kind events.Kind, status string) events.AppointmentChanged {
	at := gofakeit.DateRange(
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	).Truncate(time.Minute)
	return events.AppointmentChanged{
		AppointmentID:  uuid.New(),
		PatientID:      uuid.New(),
		PatientName:    gofakeit.Name(),
		PatientEmail:   gofakeit.Email(),
		ProviderID:     uuid.New(),
		ProviderName:   "Dr. " + gofakeit.LastName(),
		ScheduledTime:  at,
		Status:         status,
		EventKind:      kind,
		EventTimestamp: at.Add(-48 * time.Hour),
	}
}

func message(t *testing.T, ev events.AppointmentChanged) eventbus.Message {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return eventbus.Message{ID: "1-0", Key: ev.Key(), Kind: ev.Kind(), Payload: b}
}

func TestProjector_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := NewProjector(newMemRepo(), zerolog.Nop())

	created := randomEvent(events.KindCreated, "SCHEDULED")
	updated := created
	updated.ScheduledTime = created.ScheduledTime.Add(time.Hour)
	updated.EventKind = events.KindUpdated
	updated.EventTimestamp = created.EventTimestamp.Add(time.Hour)
	other := randomEvent(events.KindCreated, "SCHEDULED")

	stream := []events.AppointmentChanged{created, other, updated}

	once := newMemRepo()
	twice := newMemRepo()
	for _, ev := range stream {
		require.NoError(t, NewProjector(once, zerolog.Nop()).Handle(ctx, message(t, ev)))
	}
	for i := 0; i < 2; i++ {
		for _, ev := range stream {
			require.NoError(t, NewProjector(twice, zerolog.Nop()).Handle(ctx, message(t, ev)))
		}
	}

	if diff := cmp.Diff(once.snapshot(), twice.snapshot()); diff != "" {
		t.Fatalf("replay changed the projection (-once +twice):\n%s", diff)
	}

	got, err := once.Get(ctx, created.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, events.KindUpdated, got.LastEventKind)
	assert.Equal(t, updated.ScheduledTime, got.ScheduledAt)
	assert.Equal(t, updated.EventTimestamp, got.ProjectedAt)

	// malformed payloads surface as ErrMalformed for the dead-letter path
	err = p.Handle(ctx, eventbus.Message{ID: "2-0", Payload: []byte("{")})
	assert.True(t, errs.Is(err, events.ErrMalformed))
}

func TestProjector_OverwritesAllFields(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	p := NewProjector(repo, zerolog.Nop())

	ev := randomEvent(events.KindCreated, "SCHEDULED")
	require.NoError(t, p.Handle(ctx, message(t, ev)))

	cancelled := ev
	cancelled.Status = "CANCELLED"
	cancelled.EventKind = events.KindCancelled
	cancelled.PatientName = "Renamed Patient"
	cancelled.ProviderName = ""
	cancelled.EventTimestamp = ev.EventTimestamp.Add(time.Minute)
	require.NoError(t, p.Handle(ctx, message(t, cancelled)))

	got, err := repo.Get(ctx, ev.AppointmentID)
	require.NoError(t, err)
	want := FromEvent(cancelled)
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_Visibility(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	q := NewQuery(repo)

	mine := FromEvent(randomEvent(events.KindCreated, "SCHEDULED"))
	theirs := FromEvent(randomEvent(events.KindCreated, "SCHEDULED"))
	require.NoError(t, repo.Upsert(ctx, mine))
	require.NoError(t, repo.Upsert(ctx, theirs))

	nurse := identity.Principal{UserID: uuid.New(), Role: identity.RoleNurse}
	patient := identity.Principal{UserID: mine.PatientID, Role: identity.RolePatient}
	stranger := identity.Principal{UserID: uuid.New(), Role: identity.Role("admin")}

	t.Run("clinical sees all", func(t *testing.T) {
		got, err := q.List(ctx, nurse)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("patient sees own", func(t *testing.T) {
		got, err := q.List(ctx, patient)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, mine.ID, got[0].ID)

		rec, err := q.Get(ctx, patient, mine.ID)
		require.NoError(t, err)
		assert.Equal(t, mine.ID, rec.ID)

		_, err = q.Get(ctx, patient, theirs.ID)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("other roles see nothing", func(t *testing.T) {
		got, err := q.List(ctx, stranger)
		require.NoError(t, err)
		assert.Empty(t, got)

		_, err = q.Get(ctx, stranger, mine.ID)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("by patient and provider are clinical only", func(t *testing.T) {
		_, err := q.ByPatient(ctx, patient, mine.PatientID)
		assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
		_, err = q.ByProvider(ctx, patient, mine.ProviderID)
		assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

		got, err := q.ByProvider(ctx, nurse, theirs.ProviderID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, theirs.ID, got[0].ID)
	})
}
