package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
)

// MarkPastAppointmentsCompleted completes every scheduled appointment that
// started before today. No events are published.
func (s *Service) MarkPastAppointmentsCompleted(ctx context.Context) (int, error) {
	now := s.clock.Now()
	cutoff := clock.StartOfDay(now, s.opts.Location)

	past, err := s.repo.FindScheduledBefore(ctx, cutoff)
	if err != nil {
		return 0, errs.Wrap(err, "find past appointments")
	}
	if len(past) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, 0, len(past))
	for _, a := range past {
		if _, err := a.Complete(now); err != nil {
			continue
		}
		ids = append(ids, a.ID)
	}

	n, err := s.repo.MarkCompleted(ctx, ids, now)
	if err != nil {
		return 0, errs.Wrap(err, "mark appointments completed")
	}

	s.logger.Info().Int64("completed", n).Time("cutoff", cutoff).Msg("past appointments completed")
	return int(n), nil
}

// SendNextDayReminders publishes a reminder for every appointment scheduled
// tomorrow. A failed directory lookup skips that appointment only. It returns
// the number of reminders published.
func (s *Service) SendNextDayReminders(ctx context.Context) (int, error) {
	today := clock.StartOfDay(s.clock.Now(), s.opts.Location)
	from := today.AddDate(0, 0, 1)
	to := today.AddDate(0, 0, 2)

	upcoming, err := s.repo.FindScheduledBetween(ctx, from, to)
	if err != nil {
		return 0, errs.Wrap(err, "find tomorrow's appointments")
	}

	sent := 0
	for _, a := range upcoming {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		patient, err := s.directory.LookupUser(ctx, a.PatientID)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("appointment_id", a.ID.String()).
				Str("patient_id", a.PatientID.String()).
				Msg("reminder skipped, patient lookup failed")
			continue
		}

		s.publish(ctx, a, events.KindReminder, patient)
		sent++
	}

	s.metrics.RemindersPublished(sent)
	s.logger.Info().
		Int("candidates", len(upcoming)).
		Int("published", sent).
		Time("from", from).
		Msg("next-day reminders sent")
	return sent, nil
}
