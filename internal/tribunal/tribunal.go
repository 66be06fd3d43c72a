// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tribunal implements parallel multi-judge consensus (C7): every
// named judge is dispatched concurrently against a per-judge deadline and
// a global deadline, votes are tallied into a majority verdict, and the
// resulting agreement rate and confidence spread drive an escalation
// recommendation.
package tribunal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
	"github.com/ghostrun/ghostd/internal/telemetry"
)

const (
	severityHighThreshold   = 0.7
	severityMediumThreshold = 0.4
	disagreementLogCap      = 100
)

// Judge is a single participant a tribunal session can dispatch to. Any
// value that can produce a verdict for a task within a deadline — a
// remote HTTP agent, a local heuristic, a test double — satisfies this.
type Judge interface {
	Name() string
	Vote(ctx context.Context, task handlers.TribunalTask) (verdict string, confidence float64, reasoning string, err error)
}

// JudgeVote is the per-judge {verdict, confidence} pair carried by a
// DisagreementRecord — a trimmed view of handlers.TribunalVote that drops
// latency, reasoning, and error detail not needed once a session is
// archived.
type JudgeVote struct {
	Judge      string
	Verdict    string
	Confidence float64
}

// DisagreementRecord is one entry in the bounded ring buffer of sessions
// that were not unanimous.
type DisagreementRecord struct {
	SessionID     string
	TaskType      string
	ContentHash   string
	Votes         []JudgeVote
	Consensus     string
	Confidence    float64
	AgreementRate float64
	Severity      string
	RecordedAt    time.Time
}

// Tribunal is the C7 consensus engine.
type Tribunal struct {
	judges map[string]Judge
	logger *telemetry.Logger

	mu            sync.Mutex
	disagreements []DisagreementRecord
}

// New builds a Tribunal over the given judge roster.
func New(judges []Judge, logger *telemetry.Logger) *Tribunal {
	if logger == nil {
		logger = telemetry.Default()
	}
	byName := make(map[string]Judge, len(judges))
	for _, j := range judges {
		byName[j.Name()] = j
	}
	return &Tribunal{judges: byName, logger: logger}
}

// Evaluate implements handlers.TribunalPort. It dispatches every named
// judge concurrently, each bounded by both its own deadline (timeout) and
// the shared ctx, collects whichever votes land before the global
// deadline expires, and computes the consensus verdict.
func (t *Tribunal) Evaluate(ctx context.Context, task handlers.TribunalTask, judgeNames []string, timeout time.Duration) (handlers.TribunalSession, error) {
	online := make([]Judge, 0, len(judgeNames))
	for _, name := range judgeNames {
		if j, ok := t.judges[name]; ok {
			online = append(online, j)
		}
	}
	if len(online) == 0 {
		return handlers.TribunalSession{}, ghosterr.New(ghosterr.NoJudgesOnline, "no requested judges are online")
	}

	globalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	votes := make([]handlers.TribunalVote, len(online))
	var wg sync.WaitGroup
	for i, judge := range online {
		wg.Add(1)
		go func(i int, j Judge) {
			defer wg.Done()
			votes[i] = t.solicit(globalCtx, j, task, timeout)
		}(i, judge)
	}
	wg.Wait()

	if !hasQuorum(votes) {
		return handlers.TribunalSession{}, ghosterr.New(ghosterr.NoQuorum, "all dispatched judges errored")
	}

	session := t.tally(task, votes)
	if session.AgreementRate < 1.0 {
		t.logDisagreement(task, session)
		session.DisagreementLogged = true
	}
	return session, nil
}

// hasQuorum reports whether at least one judge returned a verdict. Per
// the failure contract, no-quorum is reserved for the case where every
// dispatched judge errored or timed out; a single surviving vote still
// yields a tallied verdict.
func hasQuorum(votes []handlers.TribunalVote) bool {
	for _, v := range votes {
		if v.Err == "" {
			return true
		}
	}
	return false
}

func (t *Tribunal) solicit(ctx context.Context, judge Judge, task handlers.TribunalTask, timeout time.Duration) handlers.TribunalVote {
	judgeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	verdict, confidence, reasoning, err := judge.Vote(judgeCtx, task)
	latency := float64(time.Since(start).Milliseconds())

	vote := handlers.TribunalVote{Judge: judge.Name(), LatencyMs: latency}
	if err != nil {
		vote.Err = err.Error()
		return vote
	}
	vote.Verdict, vote.Confidence, vote.Reasoning = verdict, confidence, reasoning
	return vote
}

// tally computes the majority verdict, agreement rate, consensus
// confidence, severity, and escalation advice for a completed round of
// voting.
func (t *Tribunal) tally(task handlers.TribunalTask, votes []handlers.TribunalVote) handlers.TribunalSession {
	counts := make(map[string]int)
	var confidences []float64
	for _, v := range votes {
		if v.Err != "" {
			continue
		}
		counts[v.Verdict]++
		confidences = append(confidences, v.Confidence)
	}

	verdict, agreement := majority(counts, len(votes))
	avgConfidence := mean(confidences)
	consensusConfidence := avgConfidence*0.6 + agreement*0.4
	severityScore := (1-agreement)*0.6 + stddev(confidences, avgConfidence)*0.4
	severity := severityLabel(severityScore)
	split := len(counts) > 1

	return handlers.TribunalSession{
		ID:            uuid.NewString(),
		Votes:         votes,
		Verdict:       verdict,
		Confidence:    consensusConfidence,
		AgreementRate: agreement,
		Severity:      severity,
		Escalation:    escalationAdvice(severity, task.Type, agreement, split),
	}
}

func majority(counts map[string]int, total int) (string, float64) {
	if total == 0 {
		return "", 0
	}
	var winner string
	var winnerCount int
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic tie-break
	for _, name := range names {
		if counts[name] > winnerCount {
			winner, winnerCount = name, counts[name]
		}
	}
	return winner, float64(winnerCount) / float64(total)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, avg float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - avg
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

func severityLabel(severity float64) string {
	switch {
	case severity >= severityHighThreshold:
		return "high"
	case severity >= severityMediumThreshold:
		return "medium"
	default:
		return "low"
	}
}

// escalationAdvice implements the three-way rule: a high-severity split
// vote always escalates; a security-audit task with weak agreement gets a
// softer recommendation; everything else just logs.
func escalationAdvice(severity, taskType string, agreement float64, split bool) string {
	switch {
	case severity == "high" && split:
		return "human-review-required"
	case strings.EqualFold(taskType, "security-audit") && agreement < 0.75:
		return "human-review-recommended"
	default:
		return "log-and-proceed"
	}
}

func (t *Tribunal) logDisagreement(task handlers.TribunalTask, session handlers.TribunalSession) {
	votes := make([]JudgeVote, 0, len(session.Votes))
	for _, v := range session.Votes {
		if v.Err != "" {
			continue
		}
		votes = append(votes, JudgeVote{Judge: v.Judge, Verdict: v.Verdict, Confidence: v.Confidence})
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.disagreements = append(t.disagreements, DisagreementRecord{
		SessionID:     session.ID,
		TaskType:      task.Type,
		ContentHash:   hashContent(task.Content),
		Votes:         votes,
		Consensus:     session.Verdict,
		Confidence:    session.Confidence,
		AgreementRate: session.AgreementRate,
		Severity:      session.Severity,
		RecordedAt:    time.Now(),
	})
	if len(t.disagreements) > disagreementLogCap {
		t.disagreements = t.disagreements[len(t.disagreements)-disagreementLogCap:]
	}
	t.logger.Warn("tribunal disagreement", "session", session.ID, "agreement_rate", session.AgreementRate)
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Disagreements returns a defensive copy of the bounded disagreement
// ring buffer.
func (t *Tribunal) Disagreements() []DisagreementRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DisagreementRecord, len(t.disagreements))
	copy(out, t.disagreements)
	return out
}
