// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics records bootstrap timings and outcomes in a private
// Prometheus registry and writes them as a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TextfileName is the file written under the stack's system log directory.
const TextfileName = "bootstrap.prom"

const namespace = "botstack"

// Step outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// =============================================================================
// Recorder
// =============================================================================

// Recorder holds one run's metrics.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying collectors are.
type Recorder struct {
	registry *prometheus.Registry

	stepDuration   *prometheus.GaugeVec
	stepRuns       *prometheus.CounterVec
	componentReady *prometheus.GaugeVec
	runInfo        *prometheus.GaugeVec
	lastRun        prometheus.Gauge
	lastSuccess    prometheus.Gauge
	runDuration    prometheus.Gauge
}

// NewRecorder creates a recorder labelled with the run ID and mode.
func NewRecorder(runID, mode string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "step_duration_seconds",
			Help:      "Duration of the last execution of each bootstrap step",
		}, []string{"step"}),
		stepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "step_runs_total",
			Help:      "Bootstrap step executions by outcome",
		}, []string{"step", "outcome"}),
		componentReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_ready",
			Help:      "1 if the component passed its readiness check during the run",
		}, []string{"component"}),
		runInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "run_info",
			Help:      "Identifies the run that produced this file",
		}, []string{"run_id", "mode"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "success",
			Help:      "1 if no load-bearing step failed",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "duration_seconds",
			Help:      "Wall time of the whole run",
		}),
	}
	r.registry.MustRegister(
		r.stepDuration, r.stepRuns, r.componentReady,
		r.runInfo, r.lastRun, r.lastSuccess, r.runDuration,
	)
	r.runInfo.WithLabelValues(runID, mode).Set(1)
	return r
}

// ObserveStep records one step execution. Failed best-effort steps count
// as skipped.
func (r *Recorder) ObserveStep(step string, d time.Duration, err error, loadBearing bool) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeSkipped
		if loadBearing {
			outcome = OutcomeFailed
		}
	}
	r.stepDuration.WithLabelValues(step).Set(d.Seconds())
	r.stepRuns.WithLabelValues(step, outcome).Inc()
}

// SetComponentReady records a readiness result.
func (r *Recorder) SetComponentReady(component string, ready bool) {
	v := 0.0
	if ready {
		v = 1
	}
	r.componentReady.WithLabelValues(component).Set(v)
}

// Finish records the overall result.
func (r *Recorder) Finish(ok bool, started, finished time.Time) {
	r.lastRun.Set(float64(finished.Unix()))
	r.runDuration.Set(finished.Sub(started).Seconds())
	if ok {
		r.lastSuccess.Set(1)
	} else {
		r.lastSuccess.Set(0)
	}
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

// WriteTextfile writes the metrics to path atomically, creating the parent
// directory.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
