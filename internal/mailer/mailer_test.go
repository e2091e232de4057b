package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Afrawles/redmine-alarm/internal/config"
)

const (
	testUser     = "alarm@domain.local"
	testPassword = "secret"
	testPage     = "<html><body><P>Hello <B>Core</B></P></body></html>"
)

type receivedMessage struct {
	From string
	To   []string
	Data []byte
}

type testBackend struct {
	mu       sync.Mutex
	messages []receivedMessage
}

func (b *testBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &testSession{backend: b}, nil
}

func (b *testBackend) received() []receivedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]receivedMessage(nil), b.messages...)
}

type testSession struct {
	backend *testBackend
	authed  bool
	from    string
	to      []string
}

func (s *testSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *testSession) Auth(_ string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != testUser || password != testPassword {
			return &smtp.SMTPError{Code: 535, EnhancedCode: smtp.EnhancedCode{5, 7, 8}, Message: "bad credentials"}
		}
		s.authed = true
		return nil
	}), nil
}

func (s *testSession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *testSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if strings.HasPrefix(to, "nobody") {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "no such user"}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, receivedMessage{From: s.from, To: s.to, Data: data})
	s.backend.mu.Unlock()
	return nil
}

func (s *testSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *testSession) Logout() error { return nil }

func startServer(t *testing.T) (*testBackend, string, int) {
	t.Helper()
	backend := &testBackend{}
	server := smtp.NewServer(backend)
	server.Domain = "localhost"
	server.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = server.Serve(l) }()
	t.Cleanup(func() { _ = server.Close() })

	host, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return backend, host, p
}

func newTestMailer(t *testing.T, to, password string, log *zap.Logger) (*Mailer, *testBackend) {
	t.Helper()
	backend, host, port := startServer(t)
	m := New(config.MailConfig{
		To:       to,
		From:     "alarm@domain.local",
		Host:     host,
		User:     testUser,
		Password: password,
		Port:     port,
	}, log)
	m.Dial = func(_ context.Context, addr string) (*smtp.Client, error) {
		return smtp.Dial(addr)
	}
	return m, backend
}

func Test_Compose(t *testing.T) {
	m := New(config.MailConfig{
		To:   "ops@domain.local, dev@domain.local",
		From: "alarm@domain.local",
	}, nil)
	m.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	raw, err := m.Compose("Redmine alarm", testPage)
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Redmine alarm", subject)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 2)
	assert.Equal(t, "ops@domain.local", to[0].Address)
	assert.Equal(t, "dev@domain.local", to[1].Address)

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "alarm@domain.local", from[0].Address)

	date, err := mr.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	id, err := mr.Header.MessageID()
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	mediaType, _, err := mr.Header.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	var types, bodies []string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		h, ok := p.Header.(*mail.InlineHeader)
		require.True(t, ok)
		ct, _, err := h.ContentType()
		require.NoError(t, err)
		body, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		types = append(types, ct)
		bodies = append(bodies, string(body))
	}

	assert.Equal(t, []string{"text/plain", "text/html"}, types)
	assert.Contains(t, bodies[0], "Hello Core")
	assert.NotContains(t, bodies[0], "<B>")
	assert.Equal(t, testPage, bodies[1])
}

func Test_Send(t *testing.T) {
	m, backend := newTestMailer(t, "ops@domain.local,dev@domain.local", testPassword, nil)

	require.NoError(t, m.Send(context.Background(), "Redmine alarm", testPage))

	msgs := backend.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alarm@domain.local", msgs[0].From)
	assert.Equal(t, []string{"ops@domain.local", "dev@domain.local"}, msgs[0].To)
	assert.Contains(t, string(msgs[0].Data), "Subject: Redmine alarm")
}

func Test_SendAuthFailure(t *testing.T) {
	m, backend := newTestMailer(t, "ops@domain.local", "wrong", nil)

	err := m.Send(context.Background(), "Redmine alarm", testPage)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 535, authErr.Code)
	assert.Equal(t, "bad credentials", authErr.Message)
	assert.Empty(t, backend.received())
}

func Test_SendAllRecipientsRefused(t *testing.T) {
	m, backend := newTestMailer(t, "nobody@domain.local, nobody2@domain.local", testPassword, nil)

	err := m.Send(context.Background(), "Redmine alarm", testPage)

	var refused *RecipientsRefusedError
	require.ErrorAs(t, err, &refused)
	assert.Len(t, refused.Refused, 2)
	assert.Equal(t, 550, refused.Refused["nobody@domain.local"].Code)
	assert.Equal(t, "all recipients refused: nobody2@domain.local, nobody@domain.local", refused.Error())
	assert.Empty(t, backend.received())
}

func Test_SendPartialRefusal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m, backend := newTestMailer(t, "nobody@domain.local,ops@domain.local", testPassword, zap.New(core))

	require.NoError(t, m.Send(context.Background(), "Redmine alarm", testPage))

	msgs := backend.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"ops@domain.local"}, msgs[0].To)

	warned := logs.FilterMessage("recipient refused").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "nobody@domain.local", warned[0].ContextMap()["recipient"])
}

func Test_SendWithoutRecipients(t *testing.T) {
	m := New(config.MailConfig{To: " , "}, nil)
	m.Dial = func(context.Context, string) (*smtp.Client, error) {
		t.Fatal("dialled without recipients")
		return nil, nil
	}

	assert.Error(t, m.Send(context.Background(), "Redmine alarm", testPage))
}

func Test_SendDialFailure(t *testing.T) {
	m := New(config.MailConfig{To: "ops@domain.local", Host: "smtp.domain.local", Port: 465}, nil)
	m.Dial = func(context.Context, string) (*smtp.Client, error) {
		return nil, errors.New("connection refused")
	}

	err := m.Send(context.Background(), "Redmine alarm", testPage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp.domain.local:465")
	assert.Equal(t, "smtp.domain.local:465", m.Addr())
}
