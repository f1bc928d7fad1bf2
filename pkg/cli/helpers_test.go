package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/cli"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

func TestParseGCSPath(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantBucket string
		wantObject string
		wantGCS    bool
		wantErr    bool
	}{
		{name: "local path", path: "/tmp/export.json"},
		{name: "bucket and object", path: "gs://bucket/dir/export.json", wantBucket: "bucket", wantObject: "dir/export.json", wantGCS: true},
		{name: "bucket only", path: "gs://bucket", wantGCS: true, wantErr: true},
		{name: "empty object", path: "gs://bucket/", wantGCS: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, object, isGCS, err := cli.ParseGCSPath(tt.path)
			gt.Value(t, isGCS).Equal(tt.wantGCS)
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.Value(t, bucket).Equal(tt.wantBucket)
			gt.Value(t, object).Equal(tt.wantObject)
		})
	}
}

func TestWriteExport_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	gt.NoError(t, cli.WriteExport(t.Context(), path, []byte(`{"a":1}`))).Required()
	gt.NoError(t, cli.WriteExport(t.Context(), path, []byte(`{}`))).Required()

	data, err := os.ReadFile(path)
	gt.NoError(t, err).Required()
	gt.Value(t, string(data)).Equal(`{}`)
}

func TestLoadCaseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cases.json")
	gt.NoError(t, os.WriteFile(path, []byte(`[{"id":"c1","task_type":"billing","summary":"s","payload":{"k":"v"}}]`), 0600)).Required()

	cases, err := cli.LoadCaseFile(path)
	gt.NoError(t, err).Required()
	gt.Array(t, cases).Length(1).Required()
	gt.Value(t, cases[0].ID).Equal("c1")
	gt.Value(t, cases[0].TaskType).Equal("billing")
	gt.Value(t, string(cases[0].Payload)).Equal(`{"k":"v"}`)

	t.Run("not an array", func(t *testing.T) {
		bad := filepath.Join(dir, "object.json")
		gt.NoError(t, os.WriteFile(bad, []byte(`{"id":"c1"}`), 0600)).Required()
		_, err := cli.LoadCaseFile(bad)
		gt.Error(t, err)
	})

	t.Run("missing id", func(t *testing.T) {
		bad := filepath.Join(dir, "noid.json")
		gt.NoError(t, os.WriteFile(bad, []byte(`[{"summary":"s"}]`), 0600)).Required()
		_, err := cli.LoadCaseFile(bad)
		gt.Error(t, err).Is(model.ErrInvalidRecord)
	})
}

func TestLoadRuleFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "rules.json")
	gt.NoError(t, os.WriteFile(path, []byte(`[{"id":"r1","domain":"billing","text":"t","confidence":0.7}]`), 0600)).Required()
	rules, err := cli.LoadRuleFile(path)
	gt.NoError(t, err).Required()
	gt.Array(t, rules).Length(1).Required()
	gt.Value(t, rules[0].Confidence).Equal(0.7)

	bad := filepath.Join(dir, "bad.json")
	gt.NoError(t, os.WriteFile(bad, []byte(`[{"id":"r1","text":"t","confidence":-0.1}]`), 0600)).Required()
	_, err = cli.LoadRuleFile(bad)
	gt.Error(t, err).Is(model.ErrInvalidConfidence)
}

func TestGetIndexConfig(t *testing.T) {
	cfg := cli.GetIndexConfig("test_", 768)
	gt.Array(t, cfg.Collections).Length(3).Required()

	names := map[string]fireconf.Collection{}
	for _, c := range cfg.Collections {
		names[c.Name] = c
	}

	for name, filterPath := range map[string]string{
		"test_memory_vectors": "Metadata.session_id",
		"test_case_vectors":   "Metadata.task_type",
		"test_rule_vectors":   "Metadata.domain",
	} {
		c, ok := names[name]
		gt.Bool(t, ok).True()
		gt.Array(t, c.Indexes).Length(2).Required()

		plain := c.Indexes[0].Fields
		gt.Array(t, plain).Length(1).Required()
		gt.Value(t, plain[0].Path).Equal("Vector")
		gt.Value(t, plain[0].Vector.Dimension).Equal(768)

		composite := c.Indexes[1].Fields
		gt.Array(t, composite).Length(2).Required()
		gt.Value(t, composite[0].Path).Equal(filterPath)
		gt.Value(t, composite[1].Path).Equal("Vector")
	}
}

func TestMarshalMemoryExport(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := cli.MarshalMemoryExport("s1", []*model.MemoryNode{
		{ID: "m1", SessionID: "s1", Kind: types.MemoryKindObservation, Content: "a", Importance: 0.3, CreatedAt: now, LastAccessedAt: now, Embedding: []float32{1, 0}},
	})
	gt.NoError(t, err).Required()

	var got map[string]any
	gt.NoError(t, json.Unmarshal(data, &got)).Required()
	gt.Value(t, got["session_id"]).Equal("s1")
	memories := got["memories"].([]any)
	gt.Array(t, memories).Length(1).Required()
	first := memories[0].(map[string]any)
	gt.Value(t, first["id"]).Equal("m1")
	gt.Value(t, first["kind"]).Equal("observation")
	gt.Value(t, first["created_at"]).Equal("2026-01-02T03:04:05Z")
}

func newRetrievedContext() *model.RetrievedContext {
	return &model.RetrievedContext{
		Query: "refund?",
		Memories: []*model.MemoryNode{
			{ID: "m1", Kind: types.MemoryKindObservation, Content: "asked for refund", Importance: 0.8},
		},
		Cases: []*model.ScoredCase{
			{Case: &model.CaseRecord{ID: "c1", TaskType: "billing", Summary: "refunded", Payload: []byte(`{"ok":true}`)}, Similarity: 0.91},
		},
		Rules: []*model.ScoredRule{
			{Rule: &model.RuleRecord{ID: "r1", Domain: "billing", Text: "check charge", Confidence: 0.9}, Similarity: 0.8, WeightedScore: 0.72},
		},
		DomainRequirements: "no promises",
		Degraded:           []types.OwnerType{types.OwnerTypeRule},
		Rationale:          "drew on everything",
	}
}

func TestPrintContext(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var buf bytes.Buffer
	cli.PrintContext(&buf, newRetrievedContext())
	out := buf.String()

	gt.String(t, out).Contains("Query: refund?")
	gt.String(t, out).Contains("Memories (1)")
	gt.String(t, out).Contains("importance=0.80")
	gt.String(t, out).Contains("similarity=0.910")
	gt.String(t, out).Contains("score=0.720 confidence=0.90")
	gt.String(t, out).Contains("no promises")
	gt.String(t, out).Contains("! rule timed out and was treated as empty")
	gt.String(t, out).Contains("drew on everything")
}

func TestPrintContextJSON(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, cli.PrintContextJSON(&buf, newRetrievedContext())).Required()

	var got struct {
		Query string `json:"query"`
		Cases []struct {
			ID      string          `json:"id"`
			Payload json.RawMessage `json:"payload"`
		} `json:"cases"`
		Rules []struct {
			WeightedScore float64 `json:"weighted_score"`
		} `json:"rules"`
		Degraded  []string `json:"degraded"`
		Rationale string   `json:"rationale"`
	}
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &got)).Required()
	gt.Value(t, got.Query).Equal("refund?")
	gt.Array(t, got.Cases).Length(1).Required()
	gt.Value(t, string(got.Cases[0].Payload)).Equal(`{"ok":true}`)
	gt.Value(t, got.Rules[0].WeightedScore).Equal(0.72)
	gt.Value(t, got.Degraded).Equal([]string{"rule"})
}
