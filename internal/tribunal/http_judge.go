// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tribunal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ghostrun/ghostd/internal/handlers"
)

// HTTPJudge is a swarm agent reached over HTTP. It POSTs the task to the
// agent's configured URL and expects a JSON object with verdict,
// confidence, and reasoning fields back.
type HTTPJudge struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPJudge builds a judge backed by a remote swarm agent endpoint.
func NewHTTPJudge(name, url string, client *http.Client) *HTTPJudge {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPJudge{name: name, url: url, client: client}
}

// Name implements Judge.
func (j *HTTPJudge) Name() string { return j.name }

type judgeRequestBody struct {
	Type    string         `json:"type"`
	Content string         `json:"content"`
	Context map[string]any `json:"context,omitempty"`
}

type judgeResponseBody struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Vote implements Judge by POSTing the task and decoding the agent's
// verdict.
func (j *HTTPJudge) Vote(ctx context.Context, task handlers.TribunalTask) (string, float64, string, error) {
	payload, err := json.Marshal(judgeRequestBody{Type: task.Type, Content: task.Content, Context: task.Context})
	if err != nil {
		return "", 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(payload))
	if err != nil {
		return "", 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return "", 0, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, "", fmt.Errorf("judge %s returned status %d", j.name, resp.StatusCode)
	}

	var body judgeResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, "", err
	}
	return body.Verdict, body.Confidence, body.Reasoning, nil
}
