package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrDisabled    = errors.New("mail: delivery disabled")
	ErrNoRecipient = errors.New("mail: message has no recipient")
	ErrCircuitOpen = errors.New("mail: provider circuit open")
)

// Config holds mail provider settings.
type Config struct {
	Enable        bool
	Provider      string // "resend" | "smtp"
	From          string
	ReplyTo       string
	ResendKey     string
	ResendBaseURL string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPass      string
	RatePerSecond float64
	Burst         int
}

// Message is a single email to send.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
	Headers map[string]string
}

// Transport delivers messages to a provider. SendBatch returns one error
// slot per message; nil means accepted.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) error
	SendBatch(ctx context.Context, msgs []Message) []error
}

// Sender guards a Transport with a token bucket and a circuit breaker.
type Sender struct {
	cfg       Config
	transport Transport
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// New picks the transport from cfg. Resend is used when an API key is set,
// otherwise SMTP.
func New(cfg Config, logger *zap.Logger) *Sender {
	var t Transport
	if cfg.Provider != "smtp" && cfg.ResendKey != "" {
		t = newResendTransport(cfg, nil)
	} else {
		t = newSMTPTransport(cfg)
	}
	return NewWithTransport(cfg, t, logger)
}

// NewWithTransport wires an explicit transport, mostly for tests.
func NewWithTransport(cfg Config, t Transport, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	s := &Sender{
		cfg:       cfg,
		transport: t,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mail-" + t.Name(),
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("mail circuit breaker state changed",
				zap.String("circuit", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			breakerState.WithLabelValues(t.Name()).Set(float64(to))
		},
	})
	return s
}

func (s *Sender) Enabled() bool { return s.cfg.Enable }

func (s *Sender) Provider() string { return s.transport.Name() }

// Send delivers one message.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.cfg.Enable {
		return ErrDisabled
	}
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	if err := s.wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.transport.Send(ctx, msg)
	})
	err = s.translate(err)
	s.observe(1, err, time.Since(start))
	return err
}

// SendBatch delivers msgs in one provider round trip where the transport
// supports it. The returned slice is parallel to msgs.
func (s *Sender) SendBatch(ctx context.Context, msgs []Message) []error {
	errs := make([]error, len(msgs))
	if len(msgs) == 0 {
		return errs
	}
	if !s.cfg.Enable {
		fill(errs, ErrDisabled)
		return errs
	}
	if err := s.wait(ctx); err != nil {
		fill(errs, err)
		return errs
	}

	start := time.Now()
	_, err := s.breaker.Execute(func() (interface{}, error) {
		got := s.transport.SendBatch(ctx, msgs)
		if len(got) != len(msgs) {
			return nil, fmt.Errorf("mail: transport returned %d results for %d messages", len(got), len(msgs))
		}
		errs = got
		for _, e := range errs {
			if e == nil {
				return nil, nil
			}
		}
		// Only a batch where nothing got through counts against the breaker.
		return nil, errs[0]
	})
	if err != nil && allNil(errs) {
		fill(errs, s.translate(err))
	}

	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	elapsed := time.Since(start)
	emailsTotal.WithLabelValues(s.transport.Name(), "sent").Add(float64(len(msgs) - failed))
	emailsTotal.WithLabelValues(s.transport.Name(), "failed").Add(float64(failed))
	sendDuration.WithLabelValues(s.transport.Name()).Observe(elapsed.Seconds())
	return errs
}

func (s *Sender) wait(ctx context.Context) error {
	start := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail rate limit: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		rateLimitWait.WithLabelValues(s.transport.Name()).Observe(waited.Seconds())
	}
	return nil
}

func (s *Sender) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (s *Sender) observe(n int, err error, elapsed time.Duration) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	emailsTotal.WithLabelValues(s.transport.Name(), status).Add(float64(n))
	sendDuration.WithLabelValues(s.transport.Name()).Observe(elapsed.Seconds())
}

func fill(errs []error, err error) {
	for i := range errs {
		errs[i] = err
	}
}

func allNil(errs []error) bool {
	for _, e := range errs {
		if e != nil {
			return false
		}
	}
	return true
}
