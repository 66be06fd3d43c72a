// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tribunal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
	"github.com/ghostrun/ghostd/internal/tribunal"
)

type fakeJudge struct {
	name       string
	verdict    string
	confidence float64
	err        error
	delay      time.Duration
}

func (f fakeJudge) Name() string { return f.name }

func (f fakeJudge) Vote(ctx context.Context, _ handlers.TribunalTask) (string, float64, string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", 0, "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", 0, "", f.err
	}
	return f.verdict, f.confidence, "reasoning from " + f.name, nil
}

func TestEvaluateUnanimousConsensus(t *testing.T) {
	judges := []tribunal.Judge{
		fakeJudge{name: "a", verdict: "approve", confidence: 0.9},
		fakeJudge{name: "b", verdict: "approve", confidence: 0.8},
		fakeJudge{name: "c", verdict: "approve", confidence: 0.95},
	}
	trib := tribunal.New(judges, nil)

	session, err := trib.Evaluate(context.Background(), handlers.TribunalTask{Type: "review"}, []string{"a", "b", "c"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "approve", session.Verdict)
	assert.Equal(t, 1.0, session.AgreementRate)
	assert.Equal(t, "low", session.Severity)
	assert.Equal(t, "log-and-proceed", session.Escalation)
	assert.Len(t, session.Votes, 3)
}

func TestEvaluateSplitVoteEscalates(t *testing.T) {
	judges := []tribunal.Judge{
		fakeJudge{name: "a", verdict: "approve", confidence: 0.9},
		fakeJudge{name: "b", verdict: "reject", confidence: 0.9},
	}
	trib := tribunal.New(judges, nil)

	session, err := trib.Evaluate(context.Background(), handlers.TribunalTask{Type: "review", Content: "diff contents"}, []string{"a", "b"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0.5, session.AgreementRate)
	assert.True(t, session.DisagreementLogged)

	logged := trib.Disagreements()
	require.Len(t, logged, 1)
	record := logged[0]
	assert.Equal(t, session.ID, record.SessionID)
	assert.Equal(t, "review", record.TaskType)
	assert.NotEmpty(t, record.ContentHash)
	assert.NotEqual(t, "diff contents", record.ContentHash)
	assert.Equal(t, session.Verdict, record.Consensus)
	assert.Equal(t, session.Severity, record.Severity)
	assert.Len(t, record.Votes, 2)
}

func TestEscalationRecommendsReviewForLowAgreementSecurityAuditTask(t *testing.T) {
	judges := []tribunal.Judge{
		fakeJudge{name: "a", verdict: "fail", confidence: 0.9},
		fakeJudge{name: "b", verdict: "pass", confidence: 0.9},
	}
	trib := tribunal.New(judges, nil)

	session, err := trib.Evaluate(context.Background(), handlers.TribunalTask{Type: "security-audit"}, []string{"a", "b"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "human-review-recommended", session.Escalation)
}

func TestEscalationLogsAndProceedsWhenUnanimousNonSecurityTask(t *testing.T) {
	judges := []tribunal.Judge{
		fakeJudge{name: "a", verdict: "approve", confidence: 0.9},
		fakeJudge{name: "b", verdict: "approve", confidence: 0.85},
	}
	trib := tribunal.New(judges, nil)

	session, err := trib.Evaluate(context.Background(), handlers.TribunalTask{Type: "review"}, []string{"a", "b"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "log-and-proceed", session.Escalation)
}

func TestEvaluateNoJudgesOnline(t *testing.T) {
	trib := tribunal.New(nil, nil)
	_, err := trib.Evaluate(context.Background(), handlers.TribunalTask{}, []string{"ghost"}, time.Second)
	require.Error(t, err)
	assert.Equal(t, ghosterr.NoJudgesOnline, ghosterr.KindOf(err))
}

func TestEvaluateTalliesFromSingleSurvivingVoteWhenOthersError(t *testing.T) {
	judges := []tribunal.Judge{
		fakeJudge{name: "a", err: assert.AnError},
		fakeJudge{name: "b", err: assert.AnError},
		fakeJudge{name: "c", verdict: "approve", confidence: 0.9},
	}
	trib := tribunal.New(judges, nil)

	session, err := trib.Evaluate(context.Background(), handlers.TribunalTask{}, []string{"a", "b", "c"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "approve", session.Verdict)
	assert.InDelta(t, 1.0/3.0, session.AgreementRate, 1e-9)
	assert.True(t, session.DisagreementLogged)
}

func TestEvaluateNoQuorumWhenAllJudgesError(t *testing.T) {
	judges := []tribunal.Judge{
		fakeJudge{name: "a", err: assert.AnError},
		fakeJudge{name: "b", err: assert.AnError},
	}
	trib := tribunal.New(judges, nil)

	_, err := trib.Evaluate(context.Background(), handlers.TribunalTask{}, []string{"a", "b"}, time.Second)
	require.Error(t, err)
	assert.Equal(t, ghosterr.NoQuorum, ghosterr.KindOf(err))
}

func TestEvaluateRespectsPerJudgeTimeout(t *testing.T) {
	judges := []tribunal.Judge{
		fakeJudge{name: "slow-a", verdict: "approve", confidence: 0.9, delay: 100 * time.Millisecond},
		fakeJudge{name: "slow-b", verdict: "approve", confidence: 0.9, delay: 100 * time.Millisecond},
		fakeJudge{name: "fast", verdict: "approve", confidence: 0.9},
	}
	trib := tribunal.New(judges, nil)

	session, err := trib.Evaluate(context.Background(), handlers.TribunalTask{}, []string{"slow-a", "slow-b", "fast"}, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "approve", session.Verdict)
	assert.InDelta(t, 1.0/3.0, session.AgreementRate, 1e-9)
}

func TestEvaluateIgnoresUnknownJudgeNames(t *testing.T) {
	judges := []tribunal.Judge{fakeJudge{name: "a", verdict: "approve", confidence: 1}}
	trib := tribunal.New(judges, nil)

	session, err := trib.Evaluate(context.Background(), handlers.TribunalTask{}, []string{"a", "nonexistent"}, time.Second)
	require.NoError(t, err)
	assert.Len(t, session.Votes, 1)
}
