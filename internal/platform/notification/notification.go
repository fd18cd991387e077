// Package notification delivers the patient- and professional-facing
// messages produced by the consent workflow. Delivery is fire-and-forget:
// the workflow hands over a recipient and a template, and a failure here is
// logged and retried but never propagated back to the state transition that
// produced it.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/domain/directory"
	"github.com/carevault/carevault/internal/platform/actor"
)

// Sender is the outbound delivery channel (SMTP relay, SMS gateway, push
// broker). The service only needs one.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// Template engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in consent
// workflow templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "access-request",
			Subject: "Access request from {{professional_name}}",
			Body:    "Dear {{patient_name}}, {{professional_name}} has requested access to your medical record. Reason given: {{reason}}. Please log in to accept or refuse the request.",
		},
		{
			ID:      "access-request-accepted",
			Subject: "Your access request was accepted",
			Body:    "The patient has accepted your access request ({{authorization_id}}). You can now consult the record.",
		},
		{
			ID:      "access-request-refused",
			Subject: "Your access request was refused",
			Body:    "The patient has refused your access request ({{authorization_id}}).",
		},
		{
			ID:      "access-grant-revoked",
			Subject: "An access grant was revoked",
			Body:    "The authorization {{authorization_id}} is no longer in force.",
		},
		{
			ID:      "emergency-access-notice",
			Subject: "Emergency access to your medical record",
			Body:    "Dear {{patient_name}}, {{professional_name}} was granted emergency access to your medical record. The access expires at {{end_at}}. If this is unexpected, contact your care facility.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using
// the supplied data map. Keys present in the template but absent from data
// are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

type Service struct {
	engine        *TemplateEngine
	sender        Sender
	patients      directory.PatientDirectory
	professionals directory.ProfessionalDirectory
	logger        zerolog.Logger
	retries       int
	backoff       time.Duration
	wg            sync.WaitGroup
}

func NewService(sender Sender, patients directory.PatientDirectory, professionals directory.ProfessionalDirectory, logger zerolog.Logger) *Service {
	return &Service{
		engine:        NewTemplateEngine(),
		sender:        sender,
		patients:      patients,
		professionals: professionals,
		logger:        logger,
		retries:       3,
		backoff:       time.Second,
	}
}

// Notify renders templateID and delivers it to the recipient's contact
// address on a background goroutine. Errors never reach the caller.
func (s *Service) Notify(ctx context.Context, recipient actor.Actor, templateID string, data map[string]string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.deliver(recipient, templateID, data); err != nil {
			s.logger.Warn().Err(err).
				Str("recipient", recipient.Ref()).
				Str("template", templateID).
				Msg("notification delivery failed")
		}
	}()
}

// Wait blocks until in-flight deliveries finish. Call during shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) deliver(recipient actor.Actor, templateID string, data map[string]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	to, err := s.resolveContact(ctx, recipient)
	if err != nil {
		return err
	}

	subject, body, err := s.engine.Render(templateID, data)
	if err != nil {
		return err
	}

	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.backoff * time.Duration(attempt))
		}
		if err = s.sender.Send(ctx, to, subject, body); err == nil {
			return nil
		}
	}
	return fmt.Errorf("send after %d attempts: %w", s.retries+1, err)
}

func (s *Service) resolveContact(ctx context.Context, recipient actor.Actor) (string, error) {
	switch recipient.Kind {
	case actor.KindPatient:
		p, err := s.patients.FindPatient(ctx, recipient.ID)
		if err != nil {
			return "", fmt.Errorf("resolve patient contact: %w", err)
		}
		return p.Email, nil
	case actor.KindProfessional:
		p, err := s.professionals.FindProfessional(ctx, recipient.ID)
		if err != nil {
			return "", fmt.Errorf("resolve professional contact: %w", err)
		}
		return p.Email, nil
	default:
		return "", errors.New("system actors have no notification channel")
	}
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// LogSender writes notifications to the process log instead of delivering
// them. Used in development where no relay is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (l *LogSender) Send(_ context.Context, to, subject, body string) error {
	l.Logger.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("notification (log sender)")
	return nil
}

// SendCall records a single call to a MockSender.
type SendCall struct {
	To      string
	Subject string
	Body    string
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	calls      []SendCall
	ShouldFail bool
	FailError  string
}

// Send records the call and optionally returns an error.
func (m *MockSender) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SendCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded calls.
func (m *MockSender) Calls() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendCall, len(m.calls))
	copy(out, m.calls)
	return out
}
