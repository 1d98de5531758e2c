package notification

import (
	"bufio"
	"context"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smtpSink accepts a single session and returns the DATA payload.
func smtpSink(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 sink ready")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch cmd {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 sink")
			case "MAIL", "RCPT", "RSET", "NOOP":
				_ = tp.PrintfLine("250 ok")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				out <- string(data)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p, out
}

func TestSMTPSender_Send(t *testing.T) {
	host, port, got := smtpSink(t)
	s := NewSMTPSender(SMTPOptions{Host: host, Port: port, Timeout: 2 * time.Second})

	m := Mail{
		From:       "notificacao@meuhospital.com",
		To:         "maria@example.com",
		Subject:    "Confirmação de Agendamento",
		Body:       "Sua consulta foi confirmada com sucesso.",
		Attachment: &Attachment{Name: "consulta.ics", ContentType: inviteContentType, Data: []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")},
	}
	require.NoError(t, s.Send(context.Background(), m))

	select {
	case data := <-got:
		assert.Contains(t, data, "To: maria@example.com")
		assert.Contains(t, data, "multipart/mixed")
		assert.Contains(t, data, "Sua consulta foi confirmada com sucesso.")
		assert.Contains(t, data, `filename=consulta.ics`)
		assert.Contains(t, data, "BEGIN:VCALENDAR")
	case <-time.After(2 * time.Second):
		t.Fatal("sink received nothing")
	}
}

func TestSMTPSender_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	s := NewSMTPSender(SMTPOptions{Host: "127.0.0.1", Port: addr.Port, Timeout: time.Second})
	err = s.Send(context.Background(), Mail{From: "a@b.c", To: "d@e.f", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial smtp")
}

func TestBuildMessage_PlainText(t *testing.T) {
	raw, err := BuildMessage(Mail{From: "a@b.c", To: "d@e.f", Subject: "Olá", Body: "corpo"})
	require.NoError(t, err)

	r := textproto.NewReader(bufio.NewReader(strings.NewReader(string(raw))))
	hdr, err := r.ReadMIMEHeader()
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", hdr.Get("Content-Type"))
	assert.Equal(t, "=?utf-8?q?Ol=C3=A1?=", hdr.Get("Subject"))
	assert.True(t, strings.HasSuffix(string(raw), "\r\n\r\ncorpo"))
}
