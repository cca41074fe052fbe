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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Weaviate class names populated by the ingestion pipeline.
const (
	objectClassName = "SchemaObject"
	recordClassName = "InstanceRecord"
)

// ConnectionState represents the graph connection state.
type ConnectionState int32

const (
	// StateConnected indicates normal operation.
	StateConnected ConnectionState = iota
	// StateDegraded indicates the graph is unavailable.
	StateDegraded
	// StateCircuitOpen indicates the circuit breaker is blocking calls.
	StateCircuitOpen
	// StateHalfOpen indicates the breaker is testing with one request.
	StateHalfOpen
)

// String returns the string representation of ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateCircuitOpen:
		return "circuit_open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// WeaviateConfig configures the resilient graph client.
type WeaviateConfig struct {
	// URL is the Weaviate server URL (e.g., "http://localhost:8080").
	URL string

	// RetryAttempts is the number of retries for failed requests.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff between retries.
	// Default: 100ms
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff.
	// Default: 5s
	MaxRetryBackoff time.Duration

	// RetryJitter adds randomness to backoff (0.0-1.0).
	// Default: 0.25
	RetryJitter float64

	// CircuitThreshold is failures-within-window before opening.
	// Default: 5
	CircuitThreshold int

	// CircuitWindow is the sliding window for counting failures.
	// Default: 30s
	CircuitWindow time.Duration

	// CircuitCooldown is how long the circuit stays open before
	// half-opening. Default: 30s
	CircuitCooldown time.Duration

	// Logger for client operations. Default: slog.Default()
	Logger *slog.Logger
}

// applyDefaults fills zero values.
func (c *WeaviateConfig) applyDefaults() {
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = 5 * time.Second
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = 0.25
	}
	if c.CircuitThreshold == 0 {
		c.CircuitThreshold = 5
	}
	if c.CircuitWindow == 0 {
		c.CircuitWindow = 30 * time.Second
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks the configuration.
func (c *WeaviateConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return errors.New("retry_jitter must be between 0 and 1")
	}
	return nil
}

// WeaviateClient is a GraphClient over a Weaviate schema graph store, with
// retry, circuit breaking, and degradation notification.
//
// Thread Safety: Safe for concurrent use from multiple goroutines.
type WeaviateClient struct {
	client *weaviate.Client
	config WeaviateConfig
	logger *slog.Logger

	state           atomic.Int32
	circuitOpenTime atomic.Int64
	closed          atomic.Bool
	halfOpenTest    atomic.Bool

	failures  []time.Time
	failIdx   int
	failureMu sync.Mutex

	handlers   []DegradationHandler
	handlersMu sync.RWMutex
}

// NewWeaviateClient creates the resilient graph client. The connection is
// lazy: the first operation establishes liveness, and failures move the
// client through the degraded/circuit-open states rather than erroring the
// constructor.
func NewWeaviateClient(config WeaviateConfig) (*WeaviateClient, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg := weaviate.Config{Host: config.URL, Scheme: "http"}
	if strings.HasPrefix(config.URL, "https://") {
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(config.URL, "https://")
	} else if strings.HasPrefix(config.URL, "http://") {
		cfg.Host = strings.TrimPrefix(config.URL, "http://")
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	wc := &WeaviateClient{
		client:   client,
		config:   config,
		logger:   config.Logger.With(slog.String("component", "schema_graph")),
		failures: make([]time.Time, config.CircuitThreshold),
	}
	wc.state.Store(int32(StateConnected))
	return wc, nil
}

// State returns the current connection state.
func (c *WeaviateClient) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// RegisterHandler registers a degradation handler. If the client is
// already degraded the handler is notified immediately.
func (c *WeaviateClient) RegisterHandler(h DegradationHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, h)
	if s := c.State(); s == StateDegraded || s == StateCircuitOpen {
		h.OnDegraded("initial state: schema graph unavailable")
	}
}

// Close marks the client closed. Subsequent calls return ErrClientClosed.
func (c *WeaviateClient) Close() error {
	c.closed.Store(true)
	return nil
}

// execute runs fn with circuit breaker and retry protection.
func (c *WeaviateClient) execute(ctx context.Context, op string, fn func() error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	ctx, span := otel.Tracer("soqlforge.schema").Start(ctx, "graph."+op,
		trace.WithAttributes(attribute.String("state", c.State().String())))
	defer span.End()

	switch c.State() {
	case StateCircuitOpen:
		if !c.shouldTryHalfOpen() {
			span.SetStatus(codes.Error, "circuit open")
			return ErrCircuitOpen
		}
		c.transition(StateHalfOpen)
	case StateHalfOpen:
		if !c.halfOpenTest.CompareAndSwap(false, true) {
			span.SetStatus(codes.Error, "circuit half-open, test in flight")
			return ErrCircuitOpen
		}
		defer c.halfOpenTest.Store(false)
	}

	var lastErr error
	backoff := c.config.RetryBackoff
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			jitter := 1 + (rand.Float64()*2-1)*c.config.RetryJitter
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(float64(backoff) * jitter)):
			}
			backoff *= 2
			if backoff > c.config.MaxRetryBackoff {
				backoff = c.config.MaxRetryBackoff
			}
		}
		if lastErr = fn(); lastErr == nil {
			c.recordSuccess()
			return nil
		}
		if errors.Is(lastErr, ErrObjectNotFound) || errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			// Not a liveness failure.
			return lastErr
		}
	}
	c.recordFailure()
	span.SetStatus(codes.Error, lastErr.Error())
	return fmt.Errorf("%w: %v", ErrGraphUnavailable, lastErr)
}

func (c *WeaviateClient) shouldTryHalfOpen() bool {
	opened := time.Unix(c.circuitOpenTime.Load(), 0)
	return time.Since(opened) >= c.config.CircuitCooldown
}

// recordFailure adds a failure to the sliding window and opens the circuit
// when the threshold is reached within the window.
func (c *WeaviateClient) recordFailure() {
	c.failureMu.Lock()
	now := time.Now()
	c.failures[c.failIdx] = now
	c.failIdx = (c.failIdx + 1) % len(c.failures)

	inWindow := 0
	for _, t := range c.failures {
		if !t.IsZero() && now.Sub(t) <= c.config.CircuitWindow {
			inWindow++
		}
	}
	c.failureMu.Unlock()

	if inWindow >= c.config.CircuitThreshold {
		c.circuitOpenTime.Store(now.Unix())
		c.transition(StateCircuitOpen)
	} else {
		c.transition(StateDegraded)
	}
}

func (c *WeaviateClient) recordSuccess() {
	c.failureMu.Lock()
	for i := range c.failures {
		c.failures[i] = time.Time{}
	}
	c.failureMu.Unlock()
	c.transition(StateConnected)
}

// transition moves to a new state and notifies handlers on edges.
func (c *WeaviateClient) transition(to ConnectionState) {
	from := ConnectionState(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	c.logger.Info("schema graph state change",
		slog.String("from", from.String()),
		slog.String("to", to.String()))

	wasUp := from == StateConnected || from == StateHalfOpen
	isUp := to == StateConnected
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	switch {
	case wasUp && !isUp:
		for _, h := range c.handlers {
			h.OnDegraded("schema graph " + to.String())
		}
	case !wasUp && isUp:
		for _, h := range c.handlers {
			h.OnRecovered()
		}
	}
}

// -----------------------------------------------------------------------------
// GraphClient implementation
// -----------------------------------------------------------------------------

// objectDefinition is the serialized field/relationship payload stored in
// the SchemaObject class by the ingestion pipeline.
type objectDefinition struct {
	Fields             []Field             `json:"fields"`
	ChildRelationships []ChildRelationship `json:"childRelationships"`
}

// ListObjects implements GraphClient.
func (c *WeaviateClient) ListObjects(ctx context.Context, tenant string) ([]string, error) {
	var names []string
	err := c.execute(ctx, "ListObjects", func() error {
		result, err := c.client.GraphQL().Get().
			WithClassName(objectClassName).
			WithFields(graphql.Field{Name: "apiName"}).
			WithWhere(tenantFilter(tenant)).
			WithLimit(10000).
			Do(ctx)
		if err != nil {
			return err
		}
		if err := graphQLError(result); err != nil {
			return err
		}
		names = names[:0]
		for _, m := range graphQLObjects(result, objectClassName) {
			if name := getString(m, "apiName"); name != "" {
				names = append(names, name)
			}
		}
		return nil
	})
	return names, err
}

// GetObjectDetail implements GraphClient.
func (c *WeaviateClient) GetObjectDetail(ctx context.Context, apiName, tenant string) (*Object, error) {
	var obj *Object
	err := c.execute(ctx, "GetObjectDetail", func() error {
		where := filters.Where().WithOperator(filters.And).WithOperands(
			[]*filters.WhereBuilder{
				tenantFilter(tenant),
				filters.Where().
					WithPath([]string{"apiName"}).
					WithOperator(filters.Equal).
					WithValueString(apiName),
			})
		result, err := c.client.GraphQL().Get().
			WithClassName(objectClassName).
			WithFields(
				graphql.Field{Name: "apiName"},
				graphql.Field{Name: "label"},
				graphql.Field{Name: "category"},
				graphql.Field{Name: "synonyms"},
				graphql.Field{Name: "definition"},
			).
			WithWhere(where).
			WithLimit(1).
			Do(ctx)
		if err != nil {
			return err
		}
		if err := graphQLError(result); err != nil {
			return err
		}
		objects := graphQLObjects(result, objectClassName)
		if len(objects) == 0 {
			return ErrObjectNotFound
		}
		m := objects[0]
		parsed := &Object{
			APIName:  getString(m, "apiName"),
			Label:    getString(m, "label"),
			Category: getString(m, "category"),
			Synonyms: getStringSlice(m, "synonyms"),
		}
		var def objectDefinition
		if raw := getString(m, "definition"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &def); err != nil {
				return fmt.Errorf("decode object definition for %s: %w", apiName, err)
			}
		}
		parsed.Fields = def.Fields
		parsed.ChildRelationships = def.ChildRelationships
		obj = parsed
		return nil
	})
	return obj, err
}

// GetFieldEmbeddings implements GraphClient. Vectors are fetched by exact
// name filter over the candidate set, never by approximate search, so
// structurally important but semantically distant candidates are kept.
func (c *WeaviateClient) GetFieldEmbeddings(ctx context.Context, objectNames []string, tenant string) (map[string][]float32, error) {
	if len(objectNames) == 0 {
		return map[string][]float32{}, nil
	}
	out := make(map[string][]float32, len(objectNames))
	err := c.execute(ctx, "GetFieldEmbeddings", func() error {
		where := filters.Where().WithOperator(filters.And).WithOperands(
			[]*filters.WhereBuilder{
				tenantFilter(tenant),
				filters.Where().
					WithPath([]string{"apiName"}).
					WithOperator(filters.ContainsAny).
					WithValueString(objectNames...),
			})
		result, err := c.client.GraphQL().Get().
			WithClassName(objectClassName).
			WithFields(
				graphql.Field{Name: "apiName"},
				graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "vector"}}},
			).
			WithWhere(where).
			WithLimit(len(objectNames)).
			Do(ctx)
		if err != nil {
			return err
		}
		if err := graphQLError(result); err != nil {
			return err
		}
		for _, m := range graphQLObjects(result, objectClassName) {
			name := getString(m, "apiName")
			additional, ok := m["_additional"].(map[string]interface{})
			if name == "" || !ok {
				continue
			}
			raw, ok := additional["vector"].([]interface{})
			if !ok {
				continue
			}
			vec := make([]float32, 0, len(raw))
			for _, v := range raw {
				if f, ok := v.(float64); ok {
					vec = append(vec, float32(f))
				}
			}
			if len(vec) > 0 {
				out[name] = vec
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingsUnavailable, err)
	}
	return out, nil
}

// SearchInstanceRecords implements GraphClient using BM25 over record
// names, pre-scoped to the grounding object set.
func (c *WeaviateClient) SearchInstanceRecords(ctx context.Context, term string, objectScope []string, tenant string) ([]InstanceRecord, error) {
	var records []InstanceRecord
	err := c.execute(ctx, "SearchInstanceRecords", func() error {
		operands := []*filters.WhereBuilder{tenantFilter(tenant)}
		if len(objectScope) > 0 {
			operands = append(operands, filters.Where().
				WithPath([]string{"objectType"}).
				WithOperator(filters.ContainsAny).
				WithValueString(objectScope...))
		}
		where := filters.Where().WithOperator(filters.And).WithOperands(operands)

		bm25 := c.client.GraphQL().Bm25ArgBuilder().
			WithQuery(term).
			WithProperties("name")

		result, err := c.client.GraphQL().Get().
			WithClassName(recordClassName).
			WithFields(
				graphql.Field{Name: "objectType"},
				graphql.Field{Name: "recordId"},
				graphql.Field{Name: "name"},
			).
			WithWhere(where).
			WithBM25(bm25).
			WithLimit(20).
			Do(ctx)
		if err != nil {
			return err
		}
		if err := graphQLError(result); err != nil {
			return err
		}
		records = records[:0]
		for _, m := range graphQLObjects(result, recordClassName) {
			records = append(records, InstanceRecord{
				ObjectType: getString(m, "objectType"),
				ID:         getString(m, "recordId"),
				Name:       getString(m, "name"),
			})
		}
		return nil
	})
	return records, err
}

var _ GraphClient = (*WeaviateClient)(nil)

// -----------------------------------------------------------------------------
// GraphQL helpers
// -----------------------------------------------------------------------------

func tenantFilter(tenant string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"tenant"}).
		WithOperator(filters.Equal).
		WithValueString(tenant)
}

func graphQLError(result *models.GraphQLResponse) error {
	if len(result.Errors) > 0 {
		return fmt.Errorf("graphql: %s", result.Errors[0].Message)
	}
	return nil
}

func graphQLObjects(result *models.GraphQLResponse, className string) []map[string]interface{} {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := data[className].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, o := range raw {
		if m, ok := o.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getStringSlice(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
