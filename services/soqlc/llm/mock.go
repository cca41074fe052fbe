// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"sync"
)

// MockClient is a scripted Client for tests. Each Complete call pops the
// next response; an exhausted script returns an error.
//
// Thread Safety: Safe for concurrent use.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	// Prompts records every prompt received, in call order.
	Prompts []string
	// Systems records every system role received, in call order.
	Systems []string
}

// NewMockClient creates a MockClient returning the given responses in order.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// Push appends further scripted responses.
func (m *MockClient) Push(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, system, prompt string, params GenerationParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Systems = append(m.Systems, system)
	m.Prompts = append(m.Prompts, prompt)
	if len(m.responses) == 0 {
		return "", errors.New("mock client: script exhausted")
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}

// CallCount returns how many Complete calls were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

var _ Client = (*MockClient)(nil)
