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

package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cybervault/cybervault/internal/observability/logger"
)

// Scheduler registers a cron entry for every scan with an enabled schedule.
// Each tick creates and runs a fresh scan cloned from the template.
type Scheduler struct {
	source  ScheduleSource
	service *Service
	cron    *cron.Cron

	mu      sync.Mutex
	entries map[string]scheduled
}

type scheduled struct {
	spec  string
	entry cron.EntryID
}

// NewScheduler creates a scheduler. Call Run to start it.
func NewScheduler(source ScheduleSource, service *Service) *Scheduler {
	return &Scheduler{
		source:  source,
		service: service,
		cron:    cron.New(cron.WithParser(cronParser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		entries: make(map[string]scheduled),
	}
}

// Sync reconciles cron entries with the stored schedules. Entries whose
// template disappeared or changed are replaced.
func (s *Scheduler) Sync(ctx context.Context) error {
	templates, err := s.source.ListScheduled(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(templates))
	for _, t := range templates {
		if !t.Schedule.Enabled {
			continue
		}
		spec := scheduleSpec(t.Schedule)
		seen[t.ID] = true

		if cur, ok := s.entries[t.ID]; ok {
			if cur.spec == spec {
				continue
			}
			s.cron.Remove(cur.entry)
			delete(s.entries, t.ID)
		}

		template := t
		entry, err := s.cron.AddFunc(spec, func() { s.tick(template) })
		if err != nil {
			slog.WarnContext(ctx, "invalid scan schedule",
				logger.Component("scheduler"),
				logger.OrgID(t.OrgID),
				logger.ScanID(t.ID),
				logger.Error(err),
			)
			continue
		}
		s.entries[t.ID] = scheduled{spec: spec, entry: entry}
	}

	for scanID, cur := range s.entries {
		if !seen[scanID] {
			s.cron.Remove(cur.entry)
			delete(s.entries, scanID)
		}
	}
	return nil
}

// Entries returns the number of registered schedules
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) tick(template *Scan) {
	ctx := context.Background()
	sc, err := s.service.RunScheduled(ctx, template)
	if err != nil {
		slog.ErrorContext(ctx, "scheduled scan failed",
			logger.Component("scheduler"),
			logger.OrgID(template.OrgID),
			logger.ScanID(template.ID),
			logger.Error(err),
		)
		return
	}
	slog.InfoContext(ctx, "scheduled scan finished",
		logger.Component("scheduler"),
		logger.OrgID(sc.OrgID),
		logger.ScanID(sc.ID),
		slog.String("status", string(sc.Status)),
	)
}

// Run starts the cron loop and re-syncs every interval until ctx is done.
// Running jobs are allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if err := s.Sync(ctx); err != nil {
		slog.WarnContext(ctx, "initial schedule sync failed", logger.Component("scheduler"), logger.Error(err))
	}
	s.cron.Start()
	slog.InfoContext(ctx, "scan scheduler started", logger.Component("scheduler"), slog.Int("schedules", s.Entries()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-s.cron.Stop().Done()
			slog.Info("scan scheduler stopped", logger.Component("scheduler"))
			return nil
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				slog.WarnContext(ctx, "schedule sync failed", logger.Component("scheduler"), logger.Error(err))
			}
		}
	}
}
