// Package harvest drives cursor pagination over a works source.
//
// The paging controller is an explicit state machine. Machine holds the pure
// transition functions; Harvester performs the I/O (fetching, sleeping,
// logging) between transitions. This keeps backoff and page-size reduction
// testable without a network.
package harvest

import (
	"errors"
	"fmt"
	"time"

	"github.com/helixir/institution-sync/internal/domain"
)

// Phase is the state of the paging controller.
type Phase int

const (
	// PhaseRequesting means the next step is a request for State.Cursor.
	PhaseRequesting Phase = iota
	// PhaseBackoff means the controller must wait State.Wait before retrying the same cursor.
	PhaseBackoff
	// PhaseDone is successful termination.
	PhaseDone
	// PhaseAborted is failed termination; State.Err holds the cause.
	PhaseAborted
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseRequesting:
		return "requesting"
	case PhaseBackoff:
		return "backoff"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Reasons recorded in State.Reason.
const (
	ReasonEmptyPage       = "empty_page"
	ReasonNoCursor        = "no_cursor"
	ReasonPageCap         = "page_cap"
	ReasonThrottled       = "throttled"
	ReasonPageSizeReduced = "page_size_reduced"
	ReasonRetriesExceeded = "retries_exhausted"
	ReasonFatal           = "fatal"
	ReasonCanceled        = "canceled"
)


// Config bounds the paging controller.
type Config struct {
	// PageSize is the initial results per page.
	PageSize int
	// ReducedPageSize is used after the first page is throttled (at most once).
	ReducedPageSize int
	// MaxPages is the safety cap on successfully fetched pages.
	MaxPages int
	// PolitenessDelay is slept between successful pages. Zero disables it.
	PolitenessDelay time.Duration
	// BaseBackoff is the first exponential backoff step when no Retry-After hint is given.
	BaseBackoff time.Duration
	// MaxWait caps any single backoff wait.
	MaxWait time.Duration
	// MaxRetries is the number of consecutive throttled retries tolerated before aborting.
	MaxRetries int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:        50,
		ReducedPageSize: 25,
		MaxPages:        200,
		PolitenessDelay: 300 * time.Millisecond,
		BaseBackoff:     800 * time.Millisecond,
		MaxWait:         120 * time.Second,
		MaxRetries:      10,
	}
}

// applyDefaults fills zero fields from DefaultConfig.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.ReducedPageSize <= 0 {
		c.ReducedPageSize = d.ReducedPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxWait <= 0 {
		c.MaxWait = d.MaxWait
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
}

// State is a snapshot of the paging controller.
type State struct {
	Phase   Phase
	Cursor  string
	PerPage int
	// Page counts successfully fetched pages.
	Page int
	// Throttles counts consecutive throttled attempts since the last success.
	Throttles int
	// Reduced records that the one-time page-size reduction has been used.
	Reduced bool
	// Wait is the pause before the next request (politeness or backoff).
	Wait time.Duration
	// Reason explains the last transition.
	Reason string
	// StatusCode is the HTTP status of a throttled attempt, if any.
	StatusCode int
	Err        error
}

// Outcome is the result of one request.
type Outcome struct {
	Records    int
	NextCursor string
	Err        error
}

// Machine holds the transition functions. It has no mutable state.
type Machine struct {
	cfg Config
}

// NewMachine creates a Machine, filling unset config fields with defaults.
func NewMachine(cfg Config) *Machine {
	cfg.applyDefaults()
	return &Machine{cfg: cfg}
}

// Config returns the effective configuration.
func (m *Machine) Config() Config {
	return m.cfg
}

// Start returns the initial state.
func (m *Machine) Start() State {
	return State{
		Phase:   PhaseRequesting,
		Cursor:  domain.StartCursor,
		PerPage: m.cfg.PageSize,
	}
}

// Next applies the outcome of a request made in the Requesting phase.
// States in any other phase are returned unchanged.
func (m *Machine) Next(s State, o Outcome) State {
	if s.Phase != PhaseRequesting {
		return s
	}
	s.Wait = 0
	s.StatusCode = 0

	if o.Err != nil {
		var rl *domain.RateLimitError
		if errors.As(o.Err, &rl) {
			return m.throttled(s, rl)
		}
		return m.Abort(s, o.Err)
	}

	s.Page++
	s.Throttles = 0
	s.Cursor = o.NextCursor

	switch {
	case o.Records == 0:
		s.Phase, s.Reason = PhaseDone, ReasonEmptyPage
	case o.NextCursor == "":
		s.Phase, s.Reason = PhaseDone, ReasonNoCursor
	case s.Page >= m.cfg.MaxPages:
		s.Phase, s.Reason = PhaseDone, ReasonPageCap
	default:
		s.Reason = ""
		s.Wait = m.cfg.PolitenessDelay
	}
	return s
}

// throttled moves to Backoff on the same cursor, or aborts once retries are spent.
func (m *Machine) throttled(s State, rl *domain.RateLimitError) State {
	s.Throttles++
	s.StatusCode = rl.StatusCode
	if s.Throttles > m.cfg.MaxRetries {
		return m.Abort(s, fmt.Errorf("%w after %d throttled attempts: %w",
			domain.ErrRetriesExhausted, s.Throttles, rl))
	}

	s.Phase = PhaseBackoff
	s.Reason = ReasonThrottled
	s.Wait = BackoffDelay(rl.RetryAfter, s.Throttles, m.cfg.BaseBackoff, m.cfg.MaxWait)

	if s.Page == 0 && !s.Reduced && m.cfg.ReducedPageSize < s.PerPage {
		s.PerPage = m.cfg.ReducedPageSize
		s.Reduced = true
		s.Reason = ReasonPageSizeReduced
	}
	return s
}

// Resume leaves Backoff and retries the same cursor.
func (m *Machine) Resume(s State) State {
	if s.Phase != PhaseBackoff {
		return s
	}
	s.Phase = PhaseRequesting
	s.Wait = 0
	return s
}

// Abort terminates with err. Terminal states are returned unchanged.
func (m *Machine) Abort(s State, err error) State {
	if s.Phase == PhaseDone || s.Phase == PhaseAborted {
		return s
	}
	s.Phase = PhaseAborted
	s.Wait = 0
	s.Err = err
	switch {
	case errors.Is(err, domain.ErrRetriesExhausted):
		s.Reason = ReasonRetriesExceeded
	case isContextErr(err):
		s.Reason = ReasonCanceled
	default:
		s.Reason = ReasonFatal
	}
	return s
}

// BackoffDelay returns retryAfter when the server gave a hint, otherwise
// base * 2^(attempt-1). The result never exceeds maxWait.
func BackoffDelay(retryAfter time.Duration, attempt int, base, maxWait time.Duration) time.Duration {
	delay := retryAfter
	if delay <= 0 {
		if attempt < 1 {
			attempt = 1
		}
		shift := attempt - 1
		if shift > 30 {
			shift = 30
		}
		delay = base << shift
	}
	if maxWait > 0 && (delay > maxWait || delay < 0) {
		delay = maxWait
	}
	return delay
}
