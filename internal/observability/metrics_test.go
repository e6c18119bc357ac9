// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(tokenVerificationsTotal.WithLabelValues("expired"))
	RecordTokenVerification("expired")
	assert.Equal(t, before+1, testutil.ToFloat64(tokenVerificationsTotal.WithLabelValues("expired")))

	before = testutil.ToFloat64(loginsTotal.WithLabelValues("success"))
	RecordLogin("success")
	assert.Equal(t, before+1, testutil.ToFloat64(loginsTotal.WithLabelValues("success")))

	SetPresenceAccounts(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(presenceAccounts))
}

func TestNewMetrics_RegistersDomainCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ServerListAdmissionsTotal.WithLabelValues("ok").Inc()

	n, err := testutil.GatherAndCount(reg, "nexusgrid_serverlist_admissions_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
