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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps the OpenTelemetry meter and the instruments shared by the
// service layers.
type Meter struct {
	meter metric.Meter

	// AuditWriteFailures counts audit entries that were dropped or failed to persist.
	AuditWriteFailures metric.Int64Counter
	// AuthorizationDenials counts requests rejected by the authorization middleware.
	AuthorizationDenials metric.Int64Counter
	// ScanDuration records scan execution time in seconds.
	ScanDuration metric.Float64Histogram
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	var meter metric.Meter
	if cfg.Enabled {
		meter = otel.Meter(serviceName)
	} else {
		meter = noop.NewMeterProvider().Meter(serviceName)
	}

	m := &Meter{meter: meter}

	var err error
	if m.AuditWriteFailures, err = m.CreateCounter("audit.write.failures", "Audit entries that could not be recorded"); err != nil {
		return nil, err
	}
	if m.AuthorizationDenials, err = m.CreateCounter("authz.denials", "Requests rejected by authorization"); err != nil {
		return nil, err
	}
	if m.ScanDuration, err = m.CreateHistogram("scan.duration", "Scan execution time", "s"); err != nil {
		return nil, err
	}

	return m, nil
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}
