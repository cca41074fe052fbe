// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grounding

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/soqlforge/services/soqlc/config"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
)

// Service grounds candidate entity terms against schema metadata (Tier 1)
// and live instance data (Tier 2).
//
// Description:
//
//	Tier 1 is pure and instant: the static synonym table, picklist value
//	sets, and object labels from the schema context. Tier 2 is a
//	rate-limited full-text search against instance records, attempted only
//	when Tier 1 found nothing confident. Tier-2 terms pass through a
//	sanitizer first so user text can never smuggle search-syntax
//	operators into the backing store.
//
// Thread Safety: Safe for concurrent use after construction. The rate
// limiter is shared across all calls, which is the point: it bounds load
// on the instance store process-wide.
type Service struct {
	graph   schema.GraphClient
	cfg     config.GroundingConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewService creates a grounding service. graph may be nil, in which case
// Tier 2 is disabled and only metadata grounding runs.
func NewService(graph schema.GraphClient, cfg config.GroundingConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	rps := cfg.SearchRatePerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Service{
		graph:   graph,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.With(slog.String("component", "grounder")),
	}
}

// GroundTerms resolves each candidate term concurrently.
//
// Description:
//
//	Each term runs the full tier ladder independently; results come back
//	in input order. Tier-2 failures (rate budget, search errors) degrade
//	that term to ungrounded rather than failing the batch: grounding is
//	advisory, and an ungrounded term simply tells the coder not to invent
//	a filter value for it.
//
// Inputs:
//
//	ctx - Cancellation and deadline for the whole batch.
//	tenant - Tenant scope for instance search.
//	terms - Candidate entity terms, typically quoted strings and proper
//	        nouns lifted from the user's query.
//	sctx - The assembled schema context; supplies picklists, labels, and
//	       the Tier-2 object scope.
//
// Outputs:
//
//	[]Result - One result per input term, same order.
func (s *Service) GroundTerms(ctx context.Context, tenant string, terms []string, sctx *schema.Context) []Result {
	results := make([]Result, len(terms))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, term := range terms {
		g.Go(func() error {
			r := s.groundTerm(gctx, tenant, term, sctx)
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// groundTerm runs the tier ladder for one term.
func (s *Service) groundTerm(ctx context.Context, tenant, term string, sctx *schema.Context) Result {
	candidate := strings.TrimSpace(term)
	if candidate == "" {
		return Ungrounded(term, "empty term")
	}

	if r, ok := s.tier1(candidate, sctx); ok {
		return r
	}
	if s.graph == nil {
		return Ungrounded(candidate, "no metadata match; instance search disabled")
	}
	return s.tier2(ctx, tenant, candidate, sctx)
}

// -----------------------------------------------------------------------------
// Tier 1: metadata
// -----------------------------------------------------------------------------

// tier1 matches the term against the synonym table, picklist value sets,
// and object labels in the context.
func (s *Service) tier1(candidate string, sctx *schema.Context) (Result, bool) {
	// Synonym expansion happens first; the canonical form is then matched
	// like any other candidate so a stale table entry cannot ground a
	// value that no longer exists in metadata.
	lookup := candidate
	viaSynonym := false
	if canonical, ok := lookupSynonym(candidate); ok {
		lookup = canonical
		viaSynonym = true
	}

	type hit struct {
		value      string
		objectType string
		confidence float64
		exact      bool
		evidence   string
	}
	var best *hit
	consider := func(h hit) {
		if best == nil || h.confidence > best.confidence {
			best = &h
		}
	}

	if sctx != nil {
		for key, values := range sctx.PicklistHints {
			objectType, _, _ := strings.Cut(key, ".")
			for _, v := range values {
				if conf, ok := fuzzyMatch(lookup, v, s.cfg.FuzzyThreshold); ok {
					consider(hit{
						value:      v,
						objectType: objectType,
						confidence: conf,
						exact:      conf == 1.0,
						evidence:   "picklist " + key,
					})
				}
			}
		}
		for _, obj := range sctx.Objects {
			if conf, ok := fuzzyMatch(lookup, obj.Label, s.cfg.FuzzyThreshold); ok {
				consider(hit{
					value:      obj.Label,
					objectType: obj.APIName,
					confidence: conf,
					exact:      conf == 1.0,
					evidence:   "object label " + obj.APIName,
				})
			}
		}
	}

	if best == nil {
		// A synonym that pointed at a value the current metadata does not
		// carry falls through to Tier 2 with the original term.
		return Result{}, false
	}

	matchType := TypeFuzzy
	if best.exact {
		matchType = TypeExact
	}
	evidence := []string{best.evidence}
	if viaSynonym {
		matchType = TypeSynonym
		evidence = append([]string{"synonym " + candidate + " -> " + lookup}, evidence...)
	}
	return Result{
		Candidate:  candidate,
		Resolved:   best.value,
		ObjectType: best.objectType,
		Grounded:   true,
		Type:       matchType,
		Source:     SourceMetadata,
		Confidence: best.confidence,
		Evidence:   evidence,
	}, true
}

// -----------------------------------------------------------------------------
// Tier 2: instance search
// -----------------------------------------------------------------------------

// tier2 runs a sanitized, rate-limited full-text search over live
// instance records scoped to the context objects.
func (s *Service) tier2(ctx context.Context, tenant, candidate string, sctx *schema.Context) Result {
	sanitized, err := SanitizeSearchTerm(candidate, s.cfg.MinTermLength)
	if err != nil {
		return Ungrounded(candidate, "sanitizer rejected term: "+err.Error())
	}

	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.Warn("instance search rate budget exhausted",
			slog.String("term", sanitized))
		return Ungrounded(candidate, "instance search skipped: rate budget")
	}

	searchCtx := ctx
	if s.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
	}

	var scope []string
	if sctx != nil {
		scope = sctx.GroundingScope
	}
	records, err := s.graph.SearchInstanceRecords(searchCtx, sanitized, scope, tenant)
	if err != nil {
		s.logger.Warn("instance search failed",
			slog.String("term", sanitized),
			slog.String("error", err.Error()))
		return Ungrounded(candidate, "instance search failed")
	}
	if len(records) == 0 {
		return Ungrounded(candidate, "no metadata match; no instance records")
	}

	best, conf := s.pickRecord(candidate, records, sctx)
	if best == nil {
		return Ungrounded(candidate, "instance records found but none matched the term")
	}
	return Result{
		Candidate:  candidate,
		Resolved:   best.Name,
		ObjectType: best.ObjectType,
		Grounded:   true,
		Type:       TypeInstanceVerified,
		Source:     SourceInstanceSearch,
		Confidence: conf,
		Evidence: []string{
			"instance search for " + sanitized,
			"matched " + best.ObjectType + " record " + best.ID,
		},
	}
}

// pickRecord selects the best record match for the term. Ties break on
// edit distance first, then on the record object's position in context
// (most relevant object wins).
func (s *Service) pickRecord(candidate string, records []schema.InstanceRecord, sctx *schema.Context) (*schema.InstanceRecord, float64) {
	priority := func(objectType string) int {
		if sctx == nil {
			return 0
		}
		lower := strings.ToLower(objectType)
		for i, o := range sctx.Objects {
			if strings.ToLower(o.APIName) == lower {
				return i
			}
		}
		return len(sctx.Objects)
	}

	type scored struct {
		rec  schema.InstanceRecord
		conf float64
		dist int
		prio int
	}
	var matches []scored
	for _, rec := range records {
		conf, ok := fuzzyMatch(candidate, rec.Name, s.cfg.FuzzyThreshold)
		if !ok {
			continue
		}
		matches = append(matches, scored{
			rec:  rec,
			conf: conf,
			dist: Levenshtein(strings.ToLower(candidate), strings.ToLower(rec.Name)),
			prio: priority(rec.ObjectType),
		})
	}
	if len(matches) == 0 {
		return nil, 0
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].prio < matches[j].prio
	})
	return &matches[0].rec, matches[0].conf
}

// -----------------------------------------------------------------------------
// Sanitizer
// -----------------------------------------------------------------------------

// searchReserved is the character set stripped from Tier-2 terms. These
// are full-text search operators in the backing store's query syntax.
const searchReserved = `?&|!{}[]()^~*:\"'+-`

// SanitizeSearchTerm strips search-syntax operators and normalizes
// whitespace. Returns ErrTermRejected when the survivor is shorter than
// minLength runes.
func SanitizeSearchTerm(term string, minLength int) (string, error) {
	var b strings.Builder
	for _, r := range term {
		if strings.ContainsRune(searchReserved, r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	sanitized := strings.Join(strings.Fields(b.String()), " ")
	if len([]rune(sanitized)) < minLength {
		return "", ErrTermRejected
	}
	return sanitized, nil
}
