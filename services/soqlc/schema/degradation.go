// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"log/slog"
	"sync/atomic"
)

// DegradationMode represents the operational mode of a graph-dependent
// component.
type DegradationMode int32

const (
	// ModeNormal indicates full functionality.
	ModeNormal DegradationMode = iota
	// ModeDegraded indicates reduced functionality (e.g., the hybrid
	// scorer running without its vector signal).
	ModeDegraded
)

// String returns the string representation of DegradationMode.
func (m DegradationMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// DegradationHandler is notified of schema graph availability changes.
//
// Components that depend on the graph (the hybrid scorer's vector signal,
// Tier-2 grounding) implement this to switch to fallback behavior instead
// of failing calls.
//
// Thread Safety: Implementations must be safe for concurrent use.
type DegradationHandler interface {
	// OnDegraded is called when the graph becomes unavailable.
	OnDegraded(reason string)

	// OnRecovered is called when the graph becomes available again.
	OnRecovered()

	// Mode returns the current degradation mode.
	Mode() DegradationMode
}

// BaseDegradationHandler tracks degradation state and logs transitions.
// Embed it in component-specific handlers.
//
// Thread Safety: Safe for concurrent use.
type BaseDegradationHandler struct {
	name   string
	mode   atomic.Int32
	logger *slog.Logger
}

// NewBaseDegradationHandler creates a handler named for logging.
// A nil logger falls back to slog.Default().
func NewBaseDegradationHandler(name string, logger *slog.Logger) *BaseDegradationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseDegradationHandler{
		name:   name,
		logger: logger.With(slog.String("component", name)),
	}
}

// OnDegraded marks the handler as degraded.
func (h *BaseDegradationHandler) OnDegraded(reason string) {
	h.mode.Store(int32(ModeDegraded))
	h.logger.Warn("component degraded, schema graph unavailable",
		slog.String("reason", reason))
}

// OnRecovered marks the handler as normal.
func (h *BaseDegradationHandler) OnRecovered() {
	h.mode.Store(int32(ModeNormal))
	h.logger.Info("component recovered, schema graph available")
}

// Mode returns the current mode.
func (h *BaseDegradationHandler) Mode() DegradationMode {
	return DegradationMode(h.mode.Load())
}

// IsDegraded reports whether the handler is degraded.
func (h *BaseDegradationHandler) IsDegraded() bool {
	return h.Mode() == ModeDegraded
}
