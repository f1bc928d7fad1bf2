package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// Default retrieval parameters
const (
	DefaultTopKMemories     = 5
	DefaultTopKCases        = 3
	DefaultTopKRules        = 3
	DefaultMinConfidence    = 0.5
	DefaultRetrievalTimeout = 10 * time.Second
)

// Retriever merges the memory stream, the case base and the rule base into a
// single RetrievedContext. The query is embedded once and the three sources
// are searched concurrently, each under its own timeout. A source that times
// out is reported as degraded and treated as empty.
type Retriever struct {
	embedder interfaces.Embedder
	cases    *CaseBase
	rules    *RuleBase
	timeout  time.Duration
}

func NewRetriever(embedder interfaces.Embedder, cases *CaseBase, rules *RuleBase, timeout time.Duration) *Retriever {
	return &Retriever{
		embedder: embedder,
		cases:    cases,
		rules:    rules,
		timeout:  timeout,
	}
}

// RetrieveContextInput is the request of one RetrieveContext call
type RetrieveContextInput struct {
	Query string

	// Stream may be nil when no session memory is available
	Stream *MemoryStream

	TopKMemories int
	TopKCases    int
	TopKRules    int

	TaskType      string // optional case filter
	Domain        string // optional rule filter
	MinConfidence float64

	// DomainRequirements is attached verbatim to the context
	DomainRequirements string
}

// runWithTimeout runs fn under its own deadline. It reports timedOut instead
// of an error when the deadline fired and the caller is still waiting; fn is
// abandoned if it ignores cancellation.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	if timeout <= 0 {
		v, err := fn(ctx)
		return v, false, err
	}

	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(subCtx)
		ch <- result{v: v, err: err}
	}()

	var zero T
	select {
	case r := <-ch:
		if r.err != nil && ctx.Err() == nil && errors.Is(subCtx.Err(), context.DeadlineExceeded) {
			return zero, true, nil
		}
		return r.v, false, r.err
	case <-subCtx.Done():
		if ctx.Err() != nil {
			return zero, false, goerr.Wrap(ctx.Err(), "retrieval cancelled")
		}
		return zero, true, nil
	}
}

func (r *Retriever) RetrieveContext(ctx context.Context, input RetrieveContextInput) (*model.RetrievedContext, error) {
	if input.TopKMemories < 0 || input.TopKCases < 0 || input.TopKRules < 0 {
		return nil, goerr.Wrap(ErrInvalidTopK, "invalid retrieval request",
			goerr.V("memories", input.TopKMemories),
			goerr.V("cases", input.TopKCases),
			goerr.V("rules", input.TopKRules))
	}
	if err := model.ValidateConfidence(input.MinConfidence); err != nil {
		return nil, goerr.Wrap(err, "invalid minimum confidence")
	}

	result := &model.RetrievedContext{
		Query:              input.Query,
		Memories:           []*model.MemoryNode{},
		Cases:              []*model.ScoredCase{},
		Rules:              []*model.ScoredRule{},
		DomainRequirements: input.DomainRequirements,
	}

	query, timedOut, err := runWithTimeout(ctx, r.timeout, func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, input.Query)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed retrieval query")
	}
	if timedOut {
		logging.From(ctx).Warn("query embedding timed out, every source is degraded", "timeout", r.timeout)
		result.Degraded = []types.OwnerType{types.OwnerTypeMemory, types.OwnerTypeCase, types.OwnerTypeRule}
		result.Rationale = buildRationale(result, input)
		return result, nil
	}

	var memoryDegraded, caseDegraded, ruleDegraded bool
	eg, egCtx := errgroup.WithContext(ctx)

	if input.Stream != nil && input.TopKMemories > 0 {
		eg.Go(func() error {
			nodes, timedOut, err := runWithTimeout(egCtx, r.timeout, func(ctx context.Context) ([]*model.MemoryNode, error) {
				return input.Stream.RetrieveByEmbedding(ctx, query, input.TopKMemories)
			})
			if err != nil {
				return goerr.Wrap(err, "memory retrieval failed", goerr.V(SourceKey, types.OwnerTypeMemory))
			}
			memoryDegraded = timedOut
			if nodes != nil {
				result.Memories = nodes
			}
			return nil
		})
	}

	if r.cases != nil && input.TopKCases > 0 {
		eg.Go(func() error {
			cases, timedOut, err := runWithTimeout(egCtx, r.timeout, func(ctx context.Context) ([]*model.ScoredCase, error) {
				return r.cases.RetrieveByEmbedding(ctx, query, input.TopKCases, input.TaskType)
			})
			if err != nil {
				return goerr.Wrap(err, "case retrieval failed", goerr.V(SourceKey, types.OwnerTypeCase))
			}
			caseDegraded = timedOut
			if cases != nil {
				result.Cases = cases
			}
			return nil
		})
	}

	if r.rules != nil && input.TopKRules > 0 {
		eg.Go(func() error {
			rules, timedOut, err := runWithTimeout(egCtx, r.timeout, func(ctx context.Context) ([]*model.ScoredRule, error) {
				return r.rules.RetrieveByEmbedding(ctx, query, input.TopKRules, input.Domain, input.MinConfidence)
			})
			if err != nil {
				return goerr.Wrap(err, "rule retrieval failed", goerr.V(SourceKey, types.OwnerTypeRule))
			}
			ruleDegraded = timedOut
			if rules != nil {
				result.Rules = rules
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	degraded := map[types.OwnerType]bool{
		types.OwnerTypeMemory: memoryDegraded,
		types.OwnerTypeCase:   caseDegraded,
		types.OwnerTypeRule:   ruleDegraded,
	}
	for _, source := range types.AllOwnerTypes() {
		if !degraded[source] {
			continue
		}
		logging.From(ctx).Warn("sub-retrieval timed out, treating source as empty",
			"source", source, "timeout", r.timeout)
		result.Degraded = append(result.Degraded, source)
	}

	result.Rationale = buildRationale(result, input)

	logging.From(ctx).Debug("context retrieved",
		"memories", len(result.Memories),
		"cases", len(result.Cases),
		"rules", len(result.Rules),
		"degraded", result.Degraded,
	)

	return result, nil
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, pluralForm)
}

func joinAnd(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

var sourceNames = map[types.OwnerType]string{
	types.OwnerTypeMemory: "memory",
	types.OwnerTypeCase:   "case base",
	types.OwnerTypeRule:   "rule base",
}

// buildRationale names the contributing sources and explains the empty ones,
// e.g. "drew on 2 prior similar cases and 3 high-confidence rules; no directly
// relevant memory found"
func buildRationale(c *model.RetrievedContext, input RetrieveContextInput) string {
	var contributed, notes []string

	if n := len(c.Memories); n > 0 {
		contributed = append(contributed, plural(n, "relevant memory", "relevant memories")+" from this session")
	} else if !c.IsDegraded(types.OwnerTypeMemory) {
		notes = append(notes, "no directly relevant memory found")
	}

	if n := len(c.Cases); n > 0 {
		contributed = append(contributed, plural(n, "prior similar case", "prior similar cases"))
	} else if !c.IsDegraded(types.OwnerTypeCase) {
		if input.TaskType != "" {
			notes = append(notes, fmt.Sprintf("no prior case found for task type %q", input.TaskType))
		} else {
			notes = append(notes, "no similar prior case found")
		}
	}

	if n := len(c.Rules); n > 0 {
		contributed = append(contributed, plural(n, "high-confidence rule", "high-confidence rules"))
	} else if !c.IsDegraded(types.OwnerTypeRule) {
		notes = append(notes, fmt.Sprintf("no rule met the minimum confidence of %.2f", input.MinConfidence))
	}

	for _, source := range c.Degraded {
		notes = append(notes, sourceNames[source]+" timed out and was treated as empty")
	}

	if c.DomainRequirements != "" {
		notes = append(notes, "domain requirements attached as hard constraints")
	}

	var sentences []string
	if len(contributed) > 0 {
		sentences = append(sentences, "drew on "+joinAnd(contributed))
	}
	sentences = append(sentences, notes...)
	return strings.Join(sentences, "; ")
}
