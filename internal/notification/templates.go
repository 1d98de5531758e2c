package notification

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
)

const displayLayout = "02/01/2006 15:04"

func Subject(kind events.Kind) string {
	switch kind {
	case events.KindCreated:
		return "Confirmação de Agendamento"
	case events.KindCancelled:
		return "Alerta: Cancelamento de Consulta!"
	case events.KindReminder:
		return "Lembrete: Sua Consulta é Amanhã"
	default:
		return "Aviso: Alteração na sua Consulta."
	}
}

// Body renders the plain-text message with the appointment time shown in loc.
func Body(ev events.AppointmentChanged, loc *time.Location) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Prezado(a) %s,\n\n", ev.PatientName)

	switch ev.EventKind {
	case events.KindCreated:
		b.WriteString("Sua consulta foi confirmada com sucesso.\n")
		b.WriteString("Detalhes:\n")
	case events.KindCancelled:
		b.WriteString("SUA CONSULTA FOI CANCELADA.\n")
		b.WriteString("Detalhes: Por favor, entre em contato com o hospital.\n")
	case events.KindUpdated:
		b.WriteString("SUA CONSULTA FOI ALTERADA.\n")
		b.WriteString("Favor verificar o novo horário e detalhes.\n")
	case events.KindReminder:
		b.WriteString("Lembramos que sua consulta acontece amanhã.\n")
		b.WriteString("Detalhes:\n")
	}

	fmt.Fprintf(&b, "ID da Consulta: %s\n", ev.AppointmentID)
	fmt.Fprintf(&b, "Data e Hora: %s\n", ev.ScheduledTime.In(loc).Format(displayLayout))
	if ev.ProviderName != "" {
		fmt.Fprintf(&b, "Médico: %s\n", ev.ProviderName)
	}
	fmt.Fprintf(&b, "ID do Médico: %s\n\n", ev.ProviderID)
	if ev.PatientPhone != "" {
		fmt.Fprintf(&b, "Telefone de Contato: %s\n\n", ev.PatientPhone)
	}
	b.WriteString("Obrigado,\nEquipe Meu Hospital")

	return b.String()
}

// Invite builds a REQUEST calendar with a single event keyed by appointment
// id, so calendar clients update the same entry on reschedule.
func Invite(ev events.AppointmentChanged, duration time.Duration, organizer string, stamp time.Time) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//meu-hospital//scheduling//PT")
	cal.Props.SetText(ical.PropMethod, "REQUEST")

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, ev.AppointmentID.String()+"@meuhospital")
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, ev.ScheduledTime.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.ScheduledTime.Add(duration).UTC())
	ve.Props.SetText(ical.PropSummary, summary(ev))

	if organizer != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.Value = "mailto:" + organizer
		ve.Props.Add(p)
	}
	if ev.PatientEmail != "" {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = "mailto:" + ev.PatientEmail
		p.Params.Set(ical.ParamCommonName, ev.PatientName)
		ve.Props.Add(p)
	}

	cal.Children = append(cal.Children, ve)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode invite: %w", err)
	}
	return buf.Bytes(), nil
}

func summary(ev events.AppointmentChanged) string {
	if ev.ProviderName != "" {
		return "Consulta com " + ev.ProviderName
	}
	return "Consulta"
}
