/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded by the resolutions counter.
const (
	OutcomePersisted     = "persisted"
	OutcomeBypassed      = "bypassed"
	OutcomeInvalidHash   = "invalid_hash"
	OutcomeUnknownHash   = "unknown_hash"
	OutcomeNotConfigured = "not_configured"
	OutcomeNoHash        = "no_hash"
	OutcomeConflict      = "conflict"
	OutcomeError         = "error"
)

var (
	resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persisted_operations",
		Name:      "resolutions_total",
		Help:      "Operation resolutions by outcome.",
	}, []string{"outcome"})

	directoryFiles = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "persisted_operations",
		Name:      "directory_files",
		Help:      "Operation files found by the last listing of an operations directory.",
	}, []string{"dir"})
)

func init() {
	prometheus.MustRegister(resolutions, directoryFiles)
}

func outcomeOf(err error, bypassed bool) string {
	switch {
	case err == nil && bypassed:
		return OutcomeBypassed
	case err == nil:
		return OutcomePersisted
	case errors.Is(err, ErrInvalidHash):
		return OutcomeInvalidHash
	case errors.Is(err, ErrUnknownHash):
		return OutcomeUnknownHash
	case errors.Is(err, ErrNotConfigured):
		return OutcomeNotConfigured
	case errors.Is(err, ErrNoHashFound):
		return OutcomeNoHash
	case errors.Is(err, ErrConfigurationConflict):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}
