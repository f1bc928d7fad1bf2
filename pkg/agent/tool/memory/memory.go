package memory

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/agent/tool"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/usecase"
)

const defaultRetrieveLimit = 5

// New builds the memory tools for one conversation. The stream is the
// session's memory; defaults supplies top-k values and filters for
// memory__retrieve_context when the agent does not set them.
func New(stream *usecase.MemoryStream, retriever *usecase.Retriever, defaults usecase.RetrieveContextInput) []gollem.Tool {
	return []gollem.Tool{
		&addMemoryTool{stream: stream, kind: types.MemoryKindObservation},
		&addMemoryTool{stream: stream, kind: types.MemoryKindReflection},
		&retrieveTool{stream: stream},
		&listTool{stream: stream},
		&deleteTool{stream: stream},
		&retrieveContextTool{stream: stream, retriever: retriever, defaults: defaults},
	}
}

// addMemoryTool appends an observation or a reflection to the stream
type addMemoryTool struct {
	stream *usecase.MemoryStream
	kind   types.MemoryKind
}

func (t *addMemoryTool) Spec() gollem.ToolSpec {
	spec := gollem.ToolSpec{
		Name:        "memory__add_observation",
		Description: "Record a raw observation from the conversation, such as something the customer said or a fact about their situation. Importance is rated automatically.",
		Parameters: map[string]*gollem.Parameter{
			"content": {
				Type:        gollem.TypeString,
				Description: "The observation to remember, in one or two sentences",
				Required:    true,
			},
		},
	}
	if t.kind == types.MemoryKindReflection {
		spec.Name = "memory__add_reflection"
		spec.Description = "Record a reflection: an insight you derived from earlier observations, such as the customer's underlying need or a conclusion you reached."
		spec.Parameters["content"].Description = "The insight to remember, in one or two sentences"
	}
	return spec
}

func (t *addMemoryTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	content, _ := args["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}

	tool.Updatef(ctx, "Remembering %s...", t.kind)

	node, err := t.stream.Add(ctx, t.kind, content)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to add memory",
			goerr.V("kind", t.kind),
			goerr.V("session_id", t.stream.SessionID()),
		)
	}

	return map[string]any{
		"id":         string(node.ID),
		"kind":       node.Kind.String(),
		"importance": node.Importance,
	}, nil
}

// retrieveTool ranks the session's memories against a query
type retrieveTool struct {
	stream *usecase.MemoryStream
}

func (t *retrieveTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "memory__retrieve",
		Description: "Retrieve the memories of this conversation most relevant to a query, ranked by recency, importance and relevance",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "What you want to recall",
				Required:    true,
			},
			"limit": {
				Type:        gollem.TypeInteger,
				Description: "Maximum number of memories to return (default: 5)",
				Required:    false,
			},
		},
	}
}

func (t *retrieveTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	tool.Updatef(ctx, "Recalling memories: %s", query)

	limit := defaultRetrieveLimit
	if v, err := extractInt64(args, "limit"); err == nil && v > 0 {
		limit = int(v)
	}

	nodes, err := t.stream.Retrieve(ctx, query, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to retrieve memories",
			goerr.V("session_id", t.stream.SessionID()),
			goerr.V("limit", limit),
		)
	}

	return map[string]any{"memories": memoryItems(nodes)}, nil
}

// listTool returns the whole stream in creation order
type listTool struct {
	stream *usecase.MemoryStream
}

func (t *listTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "memory__list",
		Description: "List every memory of this conversation in the order it was recorded",
		Parameters:  map[string]*gollem.Parameter{},
	}
}

func (t *listTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	tool.Update(ctx, "Listing memories...")

	items := memoryItems(t.stream.Nodes())
	return map[string]any{"memories": items, "count": len(items)}, nil
}

// deleteTool forgets one memory
type deleteTool struct {
	stream *usecase.MemoryStream
}

func (t *deleteTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "memory__delete",
		Description: "Forget a memory by its ID, e.g. when it turned out to be wrong",
		Parameters: map[string]*gollem.Parameter{
			"memory_id": {
				Type:        gollem.TypeString,
				Description: "The ID of the memory to forget",
				Required:    true,
			},
		},
	}
}

func (t *deleteTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	memoryID, _ := args["memory_id"].(string)
	if memoryID == "" {
		return nil, fmt.Errorf("memory_id is required")
	}

	tool.Updatef(ctx, "Forgetting memory %s...", memoryID)

	if err := t.stream.Delete(ctx, model.MemoryID(memoryID)); err != nil {
		return nil, goerr.Wrap(err, "failed to delete memory", goerr.V("memory_id", memoryID))
	}
	return map[string]any{"deleted": true}, nil
}

// retrieveContextTool merges memories, prior cases and rules for a query
type retrieveContextTool struct {
	stream    *usecase.MemoryStream
	retriever *usecase.Retriever
	defaults  usecase.RetrieveContextInput
}

func (t *retrieveContextTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "memory__retrieve_context",
		Description: "Gather everything relevant to answer the customer: memories of this conversation, similar prior cases and high-confidence guidance rules. Call this before giving advice.",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "The customer's question or the topic you need advice on",
				Required:    true,
			},
			"task_type": {
				Type:        gollem.TypeString,
				Description: "Restrict prior cases to this task type",
				Required:    false,
			},
			"domain": {
				Type:        gollem.TypeString,
				Description: "Restrict rules to this domain",
				Required:    false,
			},
			"min_confidence": {
				Type:        gollem.TypeNumber,
				Description: "Minimum rule confidence between 0 and 1",
				Required:    false,
			},
		},
	}
}

func (t *retrieveContextTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	tool.Updatef(ctx, "Retrieving context: %s", query)

	input := t.defaults
	input.Query = query
	input.Stream = t.stream
	if v, _ := args["task_type"].(string); v != "" {
		input.TaskType = v
	}
	if v, _ := args["domain"].(string); v != "" {
		input.Domain = v
	}
	if v, err := extractFloat64(args, "min_confidence"); err == nil {
		input.MinConfidence = v
	}

	rc, err := t.retriever.RetrieveContext(ctx, input)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to retrieve context", goerr.V("query", query))
	}

	cases := make([]map[string]any, len(rc.Cases))
	for i, c := range rc.Cases {
		item := map[string]any{
			"id":         c.Case.ID,
			"task_type":  c.Case.TaskType,
			"summary":    c.Case.Summary,
			"similarity": c.Similarity,
		}
		if len(c.Case.Payload) > 0 {
			item["payload"] = string(c.Case.Payload)
		}
		cases[i] = item
	}

	rules := make([]map[string]any, len(rc.Rules))
	for i, r := range rc.Rules {
		rules[i] = map[string]any{
			"id":         r.Rule.ID,
			"domain":     r.Rule.Domain,
			"text":       r.Rule.Text,
			"confidence": r.Rule.Confidence,
			"score":      r.WeightedScore,
		}
	}

	degraded := make([]string, len(rc.Degraded))
	for i, d := range rc.Degraded {
		degraded[i] = d.String()
	}

	result := map[string]any{
		"memories":  memoryItems(rc.Memories),
		"cases":     cases,
		"rules":     rules,
		"rationale": rc.Rationale,
	}
	if len(degraded) > 0 {
		result["degraded"] = degraded
	}
	if rc.DomainRequirements != "" {
		result["domain_requirements"] = rc.DomainRequirements
	}
	return result, nil
}

func memoryItems(nodes []*model.MemoryNode) []map[string]any {
	items := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		items[i] = map[string]any{
			"id":         string(n.ID),
			"kind":       n.Kind.String(),
			"content":    n.Content,
			"importance": n.Importance,
			"created_at": n.CreatedAt.String(),
		}
	}
	return items
}

// extractInt64 reads an integer argument; JSON numbers arrive as float64
func extractInt64(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

func extractFloat64(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}
