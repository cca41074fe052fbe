// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for compilation operations.
var (
	tracer = otel.Tracer("soqlforge.pipeline")
	meter  = otel.Meter("soqlforge.pipeline")
)

// Metrics for compilation operations.
var (
	compileLatency metric.Float64Histogram
	compileTotal   metric.Int64Counter
	repairPasses   metric.Int64Histogram
	regenerations  metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		compileLatency, err = meter.Float64Histogram(
			"soqlc_compile_duration_seconds",
			metric.WithDescription("Duration of compilation requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		compileTotal, err = meter.Int64Counter(
			"soqlc_compile_total",
			metric.WithDescription("Total compilation requests by terminal status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		repairPasses, err = meter.Int64Histogram(
			"soqlc_repair_passes",
			metric.WithDescription("Repair passes consumed per compilation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		regenerations, err = meter.Int64Histogram(
			"soqlc_regenerations",
			metric.WithDescription("Coder regenerations consumed per compilation"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startCompileSpan creates the root span for one compilation.
func startCompileSpan(ctx context.Context, compilationID, tenant string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Compiler.Compile",
		trace.WithAttributes(
			attribute.String("soqlc.compilation_id", compilationID),
			attribute.String("soqlc.tenant", tenant),
		),
	)
}

// recordCompileMetrics records the terminal outcome of a compilation.
func recordCompileMetrics(ctx context.Context, duration time.Duration, status Status, passes, regens int) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("status", string(status)),
	)
	compileLatency.Record(ctx, duration.Seconds(), attrs)
	compileTotal.Add(ctx, 1, attrs)
	repairPasses.Record(ctx, int64(passes))
	regenerations.Record(ctx, int64(regens))
}
