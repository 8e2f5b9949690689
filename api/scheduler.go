/*
scheduler.go - Automated agent invoicing scheduler

PURPOSE:
  Periodically recognises the due commission rows of every agent on a
  generated agent invoice line, so prepayment installments become paid
  without a manual POST /api/agents/{id}/invoice.

DESIGN:
  - robfig/cron with a panic-recovering job chain
  - One run walks every agent and invoices rows dated up to today
  - Invoice line IDs are <agent>-<date>; a second run on the same day
    finds nothing left to recognise
  - A failing agent is logged and skipped; the run reports the first error

CONFIGURATION:
  - scheduler.enabled
  - scheduler.invoice_schedule (cron expression, default "0 0 1 * *")

USAGE:
  s := NewInvoiceScheduler(repo, engine, m, log, "0 0 1 * *")
  s.Start()
  // ... later
  <-s.Stop().Done()
*/
package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/warp/premium-engine/commission"
	"github.com/warp/premium-engine/factory"
	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/logger"
	"github.com/warp/premium-engine/metrics"
)

const invoiceJob = "invoice_agents"

// InvoiceScheduler runs agent invoicing on a cron schedule.
type InvoiceScheduler struct {
	Repo     *factory.Repository
	Engine   *commission.Engine
	Metrics  *metrics.Metrics
	Log      *logger.Logger
	Schedule string
	Today    func() generic.TimePoint

	cron *cron.Cron
	mu   sync.Mutex
}

func NewInvoiceScheduler(repo *factory.Repository, engine *commission.Engine, m *metrics.Metrics, log *logger.Logger, schedule string) *InvoiceScheduler {
	log = log.OrNop().With("component", "scheduler")
	return &InvoiceScheduler{
		Repo:     repo,
		Engine:   engine,
		Metrics:  m,
		Log:      log,
		Schedule: schedule,
		Today:    generic.Today,
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger{log}))),
	}
}

// Start registers the invoicing job and starts the cron scheduler.
func (s *InvoiceScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.Schedule, func() {
		if _, err := s.RunNow(context.Background()); err != nil {
			s.Log.Errorw("scheduled agent invoicing failed", "error", err)
		}
	}); err != nil {
		return errors.Wrapf(err, "invalid invoice schedule %q", s.Schedule)
	}
	s.cron.Start()
	s.Log.Infow("scheduler started", "schedule", s.Schedule)
	return nil
}

// Stop stops the scheduler. The returned context is done once a running
// job has finished.
func (s *InvoiceScheduler) Stop() context.Context {
	s.Log.Infow("scheduler stopping")
	return s.cron.Stop()
}

// RunNow invoices every agent's due rows and returns the number of rows
// recognised. Runs don't overlap.
func (s *InvoiceScheduler) RunNow(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agents, err := s.Repo.Agents(ctx)
	if err != nil {
		s.Metrics.JobRun(invoiceJob, err)
		return 0, err
	}

	today := s.Today()
	var firstErr error
	total := 0
	for _, agent := range agents {
		line := fmt.Sprintf("%s-%s", agent.ID, today)
		rows, err := s.Engine.InvoiceAgentCommissions(ctx, agent.ID, today, line)
		if err != nil {
			s.Log.Errorw("agent invoicing failed", "agent", agent.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += len(rows)
	}

	s.Metrics.JobRun(invoiceJob, firstErr)
	s.Log.Infow("agent invoicing completed", "agents", len(agents), "rows", total)
	return total, firstErr
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
