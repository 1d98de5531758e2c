package notification

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/eventbus"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/metrics"
)

const inviteContentType = "text/calendar; method=REQUEST; charset=utf-8"

type Options struct {
	From     string
	Location *time.Location
	Duration time.Duration
}

type Dispatcher struct {
	sender  Sender
	logs    LogRepository
	clock   clock.Clock
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(sender Sender, logs LogRepository, clk clock.Clock, opts Options, logger zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Duration <= 0 {
		opts.Duration = 30 * time.Minute
	}
	return &Dispatcher{
		sender:  sender,
		logs:    logs,
		clock:   clk,
		opts:    opts,
		logger:  logger.With().Str("component", "notification_dispatcher").Logger(),
		metrics: m,
	}
}

// Handle sends one email per appointment event and always records the
// outcome. Only a failure to record is returned, so the bus redelivers.
func (d *Dispatcher) Handle(ctx context.Context, msg eventbus.Message) error {
	ev, err := events.DecodeAppointmentChanged(msg.Payload)
	if err != nil {
		return err
	}

	entry := LogEntry{
		AppointmentID: ev.AppointmentID,
		PatientID:     ev.PatientID,
		EventKind:     ev.EventKind,
		Recipient:     strings.TrimSpace(ev.PatientEmail),
		Payload:       msg.Payload,
		CreatedAt:     d.clock.Now(),
	}

	log := d.logger.With().
		Str("appointment_id", ev.AppointmentID.String()).
		Str("event_kind", string(ev.EventKind)).
		Logger()

	if entry.Recipient == "" {
		entry.Status = StatusFailedNoEmail
		log.Warn().Str("patient_id", ev.PatientID.String()).Msg("notification skipped, patient has no email")
	} else if err := d.deliver(ctx, ev, entry.Recipient); err != nil {
		entry.Status = StatusFailedDelivery
		entry.Error = err.Error()
		log.Error().Err(err).Str("recipient", entry.Recipient).Msg("notification delivery failed")
	} else {
		entry.Status = StatusSent
		log.Info().Str("recipient", entry.Recipient).Msg("notification sent")
	}

	d.metrics.Notification(string(ev.EventKind), string(entry.Status))

	if err := d.logs.Save(ctx, entry); err != nil {
		return errs.Wrap(err, "save notification log")
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, ev events.AppointmentChanged, to string) error {
	m := Mail{
		From:    d.opts.From,
		To:      to,
		Subject: Subject(ev.EventKind),
		Body:    Body(ev, d.opts.Location),
	}

	if ev.EventKind != events.KindCancelled {
		ics, err := Invite(ev, d.opts.Duration, d.opts.From, d.clock.Now())
		if err != nil {
			return err
		}
		m.Attachment = &Attachment{Name: "consulta.ics", ContentType: inviteContentType, Data: ics}
	}

	return d.sender.Send(ctx, m)
}
