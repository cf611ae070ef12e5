package scoring

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Case is one (question, answer, contexts) triple to score.
type Case struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Contexts []string `json:"contexts"`
}

// CaseResult pairs a case id with its report.
type CaseResult struct {
	ID     string  `json:"id"`
	Report *Report `json:"report"`
}

// Pool scores many cases concurrently with a bounded number of workers.
type Pool struct {
	builder    *Builder
	maxWorkers int
	timeout    time.Duration
	onDone     func()
}

// NewPool creates a pool. maxWorkers <= 0 means 4; timeout <= 0 means 5 minutes.
func NewPool(builder *Builder, maxWorkers int, timeout time.Duration) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Pool{builder: builder, maxWorkers: maxWorkers, timeout: timeout}
}

// OnDone registers a callback invoked after each case, e.g. to advance a
// progress bar. It may be called from several goroutines.
func (p *Pool) OnDone(fn func()) *Pool {
	p.onDone = fn
	return p
}

// Run scores all cases. Results keep input order. If the timeout elapses the
// partial results are returned with an error.
func (p *Pool) Run(ctx context.Context, cases []Case) ([]CaseResult, error) {
	results := make([]CaseResult, len(cases))
	if len(cases) == 0 {
		return results, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.maxWorkers)

	for i, c := range cases {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Each goroutine writes only its own slot.
			results[i] = CaseResult{ID: c.ID, Report: p.builder.Build(gctx, c.Question, c.Answer, c.Contexts)}
			if p.onDone != nil {
				p.onDone()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("batch scoring: %w", err)
	}
	return results, nil
}
