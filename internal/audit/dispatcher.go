// Copyright 2026 The CyberVault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cybervault/cybervault/internal/id"
	"github.com/cybervault/cybervault/internal/observability/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// DispatcherConfig holds audit dispatch configuration
type DispatcherConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
	// Failures counts entries that could not be written. Optional.
	Failures metric.Int64Counter
}

type job struct {
	ctx   context.Context
	entry Entry
}

// Dispatcher is the asynchronous Emitter. Entries are queued and written to
// every sink by background workers, each write under its own timeout and
// detached from the cancellation of the request that produced it.
type Dispatcher struct {
	sinks    []Sink
	queue    chan job
	timeout  time.Duration
	failures metric.Int64Counter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher and starts its workers
func NewDispatcher(cfg DispatcherConfig, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	failures := cfg.Failures
	if failures == nil {
		failures, _ = noop.NewMeterProvider().Meter("audit").Int64Counter("audit_write_failures")
	}

	d := &Dispatcher{
		sinks:    sinks,
		queue:    make(chan job, cfg.QueueSize),
		timeout:  cfg.WriteTimeout,
		failures: failures,
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}

	return d
}

// Emit stamps the entry and queues it. It never blocks: when the queue is
// full or the dispatcher is closed the entry is dropped and the drop is
// reported out of band.
func (d *Dispatcher) Emit(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = id.NewULID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	if info, ok := RequestInfoFrom(ctx); ok {
		if e.IPAddress == "" {
			e.IPAddress = info.IPAddress
		}
		if e.UserAgent == "" {
			e.UserAgent = info.UserAgent
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.reportFailure(ctx, e, "closed", nil)
		return
	}

	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), entry: e}:
	default:
		d.reportFailure(ctx, e, "queue_full", nil)
	}
}

// Close stops accepting entries and waits for queued writes to finish or
// for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		for _, sink := range d.sinks {
			d.write(j, sink)
		}
	}
}

func (d *Dispatcher) write(j job, sink Sink) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "audit sink panicked", logger.Component("audit"), slog.Any("panic", r))
			d.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "panic")))
		}
	}()

	if err := sink.Write(ctx, j.entry); err != nil {
		reason := "error"
		if ctx.Err() != nil {
			reason = "timeout"
		}
		d.reportFailure(ctx, j.entry, reason, err)
	}
}

func (d *Dispatcher) reportFailure(ctx context.Context, e Entry, reason string, err error) {
	slog.ErrorContext(ctx, "failed to record audit entry",
		logger.Component("audit"),
		logger.Error(err),
		slog.String("reason", reason),
		slog.String("audit_id", e.ID),
		slog.String("audit_action", e.Action),
		logger.OrgID(e.OrgID),
	)
	d.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
