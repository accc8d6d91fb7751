package harvest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/institution-sync/internal/domain"
	"github.com/helixir/institution-sync/internal/observability"
	"github.com/helixir/institution-sync/internal/papersources/openalex"
)

// PageFetcher fetches one page of works at a cursor.
// *openalex.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string, perPage int) (*openalex.Page, error)
}

// Sleeper pauses between requests.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d).
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// ContextSleeper sleeps for d or until ctx is done.
var ContextSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
})

// Result is the outcome of a run. Snapshot holds every record accumulated,
// including on abort.
type Result struct {
	Snapshot *domain.Snapshot
	Final    State
}

// Harvester drives a PageFetcher through the paging state machine.
type Harvester struct {
	fetcher PageFetcher
	machine *Machine
	sleeper Sleeper
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithSleeper replaces the sleeper. Tests use it to record waits.
func WithSleeper(s Sleeper) Option {
	return func(h *Harvester) { h.sleeper = s }
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Harvester) { h.metrics = m }
}

// WithClock replaces time.Now for the snapshot timestamp.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) { h.now = now }
}

// New creates a Harvester.
func New(fetcher PageFetcher, cfg Config, logger zerolog.Logger, opts ...Option) *Harvester {
	h := &Harvester{
		fetcher: fetcher,
		machine: NewMachine(cfg),
		sleeper: ContextSleeper,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run fetches pages until the machine terminates.
//
// The returned Result is never nil and always carries a snapshot of the
// records accumulated so far. The error is non-nil when the run aborted.
func (h *Harvester) Run(ctx context.Context) (*Result, error) {
	started := h.now()
	items := make([]domain.WorkRecord, 0)
	state := h.machine.Start()

	for {
		switch state.Phase {
		case PhaseRequesting:
			state, items = h.request(ctx, state, items)

		case PhaseBackoff:
			h.logBackoff(state)
			if err := h.sleeper.Sleep(ctx, state.Wait); err != nil {
				state = h.machine.Abort(state, err)
				continue
			}
			state = h.machine.Resume(state)

		case PhaseDone:
			h.logger.Info().
				Int("pages", state.Page).
				Int("works", len(items)).
				Str("reason", state.Reason).
				Msg("pagination finished")
			h.metrics.RecordRun("success", h.now().Sub(started))
			return h.result(state, items), nil

		case PhaseAborted:
			h.logger.Error().
				Err(state.Err).
				Int("pages", state.Page).
				Int("works", len(items)).
				Str("reason", state.Reason).
				Msg("pagination aborted")
			h.metrics.RecordRun("aborted", h.now().Sub(started))
			return h.result(state, items), state.Err

		default:
			return h.result(state, items), fmt.Errorf("unknown phase %s", state.Phase)
		}
	}
}

// request performs one fetch in the Requesting phase and applies the transition.
func (h *Harvester) request(ctx context.Context, state State, items []domain.WorkRecord) (State, []domain.WorkRecord) {
	logger := observability.WithPageContext(h.logger, state.Page+1, state.PerPage)
	logger.Info().Msg("fetching page")

	page, err := h.fetcher.FetchPage(ctx, state.Cursor, state.PerPage)
	h.metrics.RecordRequest(outcomeLabel(err))

	outcome := Outcome{Err: err}
	if err == nil {
		items = append(items, page.Records...)
		outcome.Records = len(page.Records)
		outcome.NextCursor = page.NextCursor
		h.metrics.RecordPage(len(page.Records))
		logger.Info().Int("items", len(page.Records)).Int("total", len(items)).Msg("got items")
	} else {
		logger.Warn().Err(err).Msg("page request failed")
	}

	next := h.machine.Next(state, outcome)
	if next.Phase == PhaseRequesting && next.Wait > 0 {
		if err := h.sleeper.Sleep(ctx, next.Wait); err != nil {
			next = h.machine.Abort(next, err)
		}
	}
	return next, items
}

func (h *Harvester) logBackoff(state State) {
	h.metrics.RecordThrottle(state.StatusCode, state.Wait)

	if state.Reason == ReasonPageSizeReduced {
		h.metrics.RecordPageSizeReduction()
		h.logger.Warn().
			Int("status", state.StatusCode).
			Int("per_page", state.PerPage).
			Msg("first page throttled, switching to smaller page size")
	}
	h.logger.Warn().
		Int("status", state.StatusCode).
		Int("attempt", state.Throttles).
		Int64("wait_ms", state.Wait.Milliseconds()).
		Msg("waiting before retry")
}

func (h *Harvester) result(state State, items []domain.WorkRecord) *Result {
	return &Result{
		Snapshot: domain.NewSnapshot(h.now(), items),
		Final:    state,
	}
}

// outcomeLabel maps a fetch error to a metrics label.
func outcomeLabel(err error) string {
	if err == nil {
		return "200"
	}
	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		return strconv.Itoa(rl.StatusCode)
	}
	var apiErr *domain.ExternalAPIError
	if errors.As(err, &apiErr) {
		return strconv.Itoa(apiErr.StatusCode)
	}
	if errors.Is(err, domain.ErrMalformedResponse) {
		return "malformed"
	}
	return "network"
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
