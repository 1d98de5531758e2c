package appointment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/eventbus"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/metrics"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/provider"
	redisclient "github.com/JavaTeamPosTech/meu-hospital-microservices/internal/redis"
)

// ProviderStore is the read side of the provider projection.
type ProviderStore interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*provider.Projection, error)
	ListProviders(ctx context.Context, specialty string) ([]provider.Projection, error)
}

type Options struct {
	Duration         time.Duration
	Policy           OverlapPolicy
	RequireNameMatch bool
	// LockWait bounds how long a write waits for the provider lock before
	// reporting the schedule as busy.
	LockWait time.Duration
	// Location defines day boundaries for the reconciliation jobs.
	Location *time.Location
	Stream   string
}

type Service struct {
	repo      Repository
	providers ProviderStore
	directory identity.Directory
	publisher eventbus.Publisher
	locker    redisclient.Locker
	clock     clock.Clock
	opts      Options
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

type Deps struct {
	Repo      Repository
	Providers ProviderStore
	Directory identity.Directory
	Publisher eventbus.Publisher
	Locker    redisclient.Locker
	Clock     clock.Clock
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

func NewService(d Deps, opts Options) *Service {
	if opts.Duration <= 0 {
		opts.Duration = 30 * time.Minute
	}
	if opts.Policy == "" {
		opts.Policy = PolicyStrict
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 2 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Stream == "" {
		opts.Stream = "appointment-events"
	}
	if d.Clock == nil {
		d.Clock = clock.NewRealClock()
	}

	return &Service{
		repo:      d.Repo,
		providers: d.Providers,
		directory: d.Directory,
		publisher: d.Publisher,
		locker:    d.Locker,
		clock:     d.Clock,
		opts:      opts,
		logger:    d.Logger.With().Str("component", "scheduling").Logger(),
		metrics:   d.Metrics,
	}
}

// CreateAppointment books a provider for a patient. The availability check
// and the insert run under the provider lock inside one transaction.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (appt *Appointment, err error) {
	defer s.observe("create", &err)

	prov, err := s.schedulableProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	// cheap rejection before the directory round trip
	if err := s.checkAvailability(ctx, s.repo, req.ProviderID, req.ScheduledAt, uuid.Nil); err != nil {
		return nil, err
	}

	patient, err := s.lookupPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if s.opts.RequireNameMatch && !namesMatch(req.PatientName, patient.Name) {
		return nil, ErrPatientNameDiffer
	}

	now := s.clock.Now()
	a := Appointment{
		ID:           uuid.New(),
		PatientID:    req.PatientID,
		PatientName:  snapshotName(patient.Name, req.PatientName),
		ProviderID:   prov.ID,
		ProviderName: prov.Name,
		ScheduledAt:  req.ScheduledAt,
		Details:      req.Details,
		Status:       StatusScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.withProviderLock(ctx, prov.ID, func(ctx context.Context, tx Repository) error {
		if err := s.checkAvailability(ctx, tx, a.ProviderID, a.ScheduledAt, uuid.Nil); err != nil {
			return err
		}
		return tx.InsertAppointment(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("provider_id", a.ProviderID.String()).
		Time("scheduled_at", a.ScheduledAt).
		Msg("appointment created")

	s.publish(ctx, a, events.KindCreated, patient)
	return &a, nil
}

// EditAppointment changes time and details of a scheduled appointment,
// refreshing both name snapshots.
func (s *Service) EditAppointment(ctx context.Context, id uuid.UUID, at time.Time, details string) (appt *Appointment, err error) {
	defer s.observe("edit", &err)

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusScheduled {
		return nil, ErrNotScheduled
	}

	prov, err := s.schedulableProvider(ctx, current.ProviderID)
	if err != nil {
		return nil, err
	}
	patient, err := s.lookupPatient(ctx, current.PatientID)
	if err != nil {
		return nil, err
	}

	var updated Appointment
	err = s.withProviderLock(ctx, current.ProviderID, func(ctx context.Context, tx Repository) error {
		fresh, err := tx.GetAppointmentByID(ctx, id)
		if err != nil {
			return err
		}
		next, err := fresh.Reschedule(at, details, snapshotName(patient.Name, fresh.PatientName), prov.Name, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.checkAvailability(ctx, tx, next.ProviderID, next.ScheduledAt, next.ID); err != nil {
			return err
		}
		if err := tx.UpdateAppointment(ctx, next, StatusScheduled); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Time("scheduled_at", updated.ScheduledAt).
		Msg("appointment rescheduled")

	s.publish(ctx, updated, events.KindUpdated, patient)
	return &updated, nil
}

// CancelAppointment moves a scheduled appointment to CANCELLED. An unknown
// patient still cancels, the event just carries no contact details.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (err error) {
	defer s.observe("cancel", &err)

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := current.Cancel(s.clock.Now().In(s.opts.Location)); err != nil {
		return err
	}

	patient, err := s.directory.LookupUser(ctx, current.PatientID)
	if err != nil {
		if !errs.Is(err, errs.ErrNotFound) {
			return err
		}
		s.logger.Warn().
			Str("appointment_id", id.String()).
			Str("patient_id", current.PatientID.String()).
			Msg("patient not in directory, cancelling without contact details")
		patient = nil
	}

	// an edit may have moved the appointment since the first read
	var cancelled Appointment
	err = s.withProviderLock(ctx, current.ProviderID, func(ctx context.Context, tx Repository) error {
		fresh, err := tx.GetAppointmentByID(ctx, id)
		if err != nil {
			return err
		}
		next, err := fresh.Cancel(s.clock.Now().In(s.opts.Location))
		if err != nil {
			return err
		}
		if err := tx.UpdateAppointment(ctx, next, StatusScheduled); err != nil {
			return err
		}
		cancelled = next
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("appointment_id", id.String()).Msg("appointment cancelled")
	s.publish(ctx, cancelled, events.KindCancelled, patient)
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) IsOwner(ctx context.Context, id, patientID uuid.UUID) (bool, error) {
	return s.repo.ExistsForPatient(ctx, id, patientID)
}

// ListAvailableProviders returns schedulable providers, optionally filtered
// by specialty (case-insensitive).
func (s *Service) ListAvailableProviders(ctx context.Context, specialty string) ([]provider.Summary, error) {
	all, err := s.providers.ListProviders(ctx, strings.TrimSpace(specialty))
	if err != nil {
		return nil, err
	}

	out := make([]provider.Summary, 0, len(all))
	for _, p := range all {
		if !p.Schedulable() {
			continue
		}
		if specialty != "" && !strings.EqualFold(strings.TrimSpace(p.Specialty), strings.TrimSpace(specialty)) {
			continue
		}
		out = append(out, p.Summary())
	}
	return out, nil
}

func (s *Service) schedulableProvider(ctx context.Context, id uuid.UUID) (*provider.Projection, error) {
	p, err := s.providers.GetProvider(ctx, id)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, errs.Wrap(err, "load provider")
	}
	if !p.Schedulable() {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

func (s *Service) lookupPatient(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	u, err := s.directory.LookupUser(ctx, id)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) checkAvailability(ctx context.Context, repo Repository, providerID uuid.UUID, at time.Time, excludeID uuid.UUID) error {
	conflicts, err := repo.FindConflicting(ctx, providerID, s.opts.Policy.Window(at, s.opts.Duration), excludeID)
	if err != nil {
		return errs.Wrap(err, "check availability")
	}
	if len(conflicts) > 0 {
		return ErrSlotTaken
	}
	return nil
}

// withProviderLock serializes schedule changes for one provider across
// replicas and runs fn in a transaction. A held lock is retried with backoff
// for up to LockWait before ErrScheduleBusy is returned.
func (s *Service) withProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx Repository) error) error {
	key := redisclient.ProviderLockKey(providerID)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = s.opts.LockWait

	op := func() error {
		err := s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
			return s.repo.WithinTx(lockCtx, fn)
		})
		if err != nil && !errors.Is(err, redisclient.ErrLockNotAcquired) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		s.logger.Warn().Str("provider_id", providerID.String()).Dur("waited", s.opts.LockWait).Msg("provider lock still held, giving up")
		return ErrScheduleBusy
	case IsSlotConflict(err):
		return ErrSlotTaken
	case errs.KindOf(err) != errs.KindInternal:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return errs.Unavailable(err, "scheduling storage unavailable")
	}
}

func (s *Service) publish(ctx context.Context, a Appointment, kind events.Kind, patient *identity.User) {
	s.publisher.Publish(ctx, s.opts.Stream, s.changedEvent(a, kind, patient))
}

func (s *Service) changedEvent(a Appointment, kind events.Kind, patient *identity.User) events.AppointmentChanged {
	ev := events.AppointmentChanged{
		AppointmentID:  a.ID,
		PatientID:      a.PatientID,
		PatientName:    a.PatientName,
		ProviderID:     a.ProviderID,
		ProviderName:   a.ProviderName,
		ScheduledTime:  a.ScheduledAt,
		Status:         string(a.Status),
		EventKind:      kind,
		EventTimestamp: s.clock.Now(),
	}
	if patient != nil {
		ev.PatientEmail = patient.Email
		ev.PatientPhone = patient.Phone
	}
	return ev
}

func (s *Service) observe(op string, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = strings.ToLower(string(errs.KindOf(*errp)))
	}
	s.metrics.SchedulingOutcome(op, outcome)
}

func namesMatch(given, canonical string) bool {
	return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(canonical))
}

// snapshotName prefers the directory's spelling and falls back to the
// caller's when the directory has none.
func snapshotName(canonical, fallback string) string {
	if n := strings.TrimSpace(canonical); n != "" {
		return n
	}
	return strings.TrimSpace(fallback)
}
