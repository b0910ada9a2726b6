package scan

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/bowltrack/internal/bowl"
	"github.com/roach88/bowltrack/internal/code"
)

// Mode selects which transition a scan triggers.
type Mode string

const (
	ModeNone    Mode = ""
	ModeKitchen Mode = "kitchen"
	ModeReturn  Mode = "return"
)

// ParseMode converts user input to a Mode. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeKitchen:
		return ModeKitchen, nil
	case ModeReturn:
		return ModeReturn, nil
	default:
		return ModeNone, bowl.NewError(bowl.CodeUnknownMode, s, "mode must be kitchen or return")
	}
}

// DefaultName replaces a blank operator or dish.
const DefaultName = "Unknown"

// Session is the terminal context a scan is taken in.
type Session struct {
	Mode     Mode   `json:"mode" yaml:"mode"`
	Operator string `json:"operator" yaml:"operator"`
	Dish     string `json:"dish,omitempty" yaml:"dish,omitempty"`
}

// Outcome is the structured result of one scan.
type Outcome struct {
	Code string `json:"code,omitempty"`
	Mode Mode   `json:"mode,omitempty"`

	// Status is the collection the bowl ended up in. Empty on failure.
	Status bowl.Status `json:"status,omitempty"`

	// CustomerReset is true when a kitchen scan evicted an Active record.
	CustomerReset bool `json:"customerReset,omitempty"`

	Err      error         `json:"-"`
	Message  string        `json:"message"`
	Severity bowl.Severity `json:"severity"`
	Elapsed  time.Duration `json:"elapsed"`
}

// OK reports whether the scan mutated the store.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// ErrorCode returns the error category, or "" on success.
func (o Outcome) ErrorCode() bowl.ErrorCode {
	return bowl.CodeOf(o.Err)
}

// Processor applies scans against one store. Not safe for concurrent use; the
// caller owns serialization.
type Processor struct {
	store     *bowl.Store
	validator code.Validator
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock sets the time source used for timestamps and Elapsed.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// WithValidator replaces the default code validator.
func WithValidator(v code.Validator) Option {
	return func(p *Processor) {
		p.validator = v
	}
}

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// NewProcessor creates a Processor writing to store.
func NewProcessor(store *bowl.Store, opts ...Option) *Processor {
	p := &Processor{
		store:  store,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates raw and applies the transition for sess.Mode.
func (p *Processor) Process(raw string, sess Session) Outcome {
	start := p.now()

	out := p.process(raw, sess, start)
	out.Mode = sess.Mode
	out.Severity = bowl.SeverityOf(out.Err)
	if out.Err != nil && out.Message == "" {
		out.Message = out.Err.Error()
	}
	out.Elapsed = p.now().Sub(start)

	p.logger.Debug("scan processed",
		"code", out.Code,
		"mode", sess.Mode,
		"status", out.Status,
		"severity", out.Severity,
		"elapsed", out.Elapsed,
	)
	return out
}

func (p *Processor) process(raw string, sess Session, now time.Time) Outcome {
	c, err := p.validator.Validate(raw)
	if err != nil {
		return Outcome{Err: err}
	}

	operator := orDefault(sess.Operator)
	switch sess.Mode {
	case ModeKitchen:
		return p.kitchen(c, operator, orDefault(sess.Dish), now)
	case ModeReturn:
		return p.returnScan(c, operator, now)
	default:
		return Outcome{Code: c, Err: bowl.NewError(bowl.CodeUnknownMode, c, "select kitchen or return mode before scanning")}
	}
}

func (p *Processor) kitchen(c, operator, dish string, now time.Time) Outcome {
	rec, hadCustomer := p.store.Prepare(c, dish, operator, now)

	msg := fmt.Sprintf("Prepared: %s", c)
	if hadCustomer {
		msg = fmt.Sprintf("Prepared (customer reset): %s", c)
	}
	p.store.AppendScan(bowl.ScanEntry{
		Code:                c,
		Kind:                bowl.ScanKitchen,
		Operator:            operator,
		Dish:                dish,
		Timestamp:           now,
		Note:                msg,
		HadPreviousCustomer: hadCustomer,
	})

	return Outcome{
		Code:          c,
		Status:        rec.Status,
		CustomerReset: hadCustomer,
		Message:       msg,
	}
}

func (p *Processor) returnScan(c, operator string, now time.Time) Outcome {
	rec, err := p.store.Return(c, operator, now)
	if err != nil {
		return Outcome{Code: c, Err: err, Message: fmt.Sprintf("Not prepared: %s", c)}
	}

	msg := fmt.Sprintf("Returned: %s", c)
	p.store.AppendScan(bowl.ScanEntry{
		Code:      c,
		Kind:      bowl.ScanReturn,
		Operator:  operator,
		Dish:      rec.Dish,
		Timestamp: now,
		Note:      msg,
	})

	return Outcome{Code: c, Status: rec.Status, Message: msg}
}

func orDefault(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return DefaultName
}
