package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-mes/internal/testing/guard"
	"github.com/odyssey-erp/odyssey-mes/jobs"
)

func TestTaskFor(t *testing.T) {
	org := uuid.New()

	task, err := taskFor("dashboard-warmup", &org, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskDashboardWarmup, task.Type())
	var payload jobs.OrgPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, org, *payload.OrgID)

	task, err = taskFor(jobs.TaskLPExpiryScan, nil, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskLPExpiryScan, task.Type())

	task, err = taskFor("idempotency-cleanup", nil, 48)
	require.NoError(t, err)
	var cleanup jobs.CleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &cleanup))
	require.Equal(t, 48, cleanup.RetentionHours)

	_, err = taskFor("gl-integrity", nil, 0)
	require.Error(t, err)
}

func TestCommandsValidateFlagsBeforeConnecting(t *testing.T) {
	cases := map[string][]string{
		"missing org":      {"org", "seed"},
		"bad org":          {"org", "seed", "--org", "nope"},
		"missing user":     {"apikey", "create", "--org", uuid.NewString()},
		"unknown job":      {"jobs", "enqueue", "gl-integrity"},
		"bad job org":      {"jobs", "enqueue", "lp-expiry-scan", "--org", "x"},
		"missing job name": {"jobs", "enqueue"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := rootCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(args)
			require.Error(t, cmd.Execute())
		})
	}
}
