package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/keremavci/engram/internal/engine"
	"github.com/keremavci/engram/internal/recall"
	"github.com/keremavci/engram/internal/record"
)

// Tool input structs with jsonschema tags

type StoreRecordInput struct {
	Content    string         `json:"content" jsonschema:"Content of the memory record,required"`
	Kind       string         `json:"kind" jsonschema:"Kind: working|episodic|semantic|procedural"`
	Scope      string         `json:"scope" jsonschema:"Scope: session|project|user"`
	Tags       []string       `json:"tags,omitempty" jsonschema:"Tags for categorization"`
	Importance *float64       `json:"importance,omitempty" jsonschema:"Importance 0.0-1.0; computed from signals when omitted"`
	Confidence float64        `json:"confidence,omitempty" jsonschema:"Confidence score 0.0-1.0"`
	SessionID  *string        `json:"session_id,omitempty" jsonschema:"Session identifier"`
	ProjectID  *string        `json:"project_id,omitempty" jsonschema:"Project identifier"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"Arbitrary metadata"`
}

type RecallInput struct {
	Query string  `json:"query" jsonschema:"Natural language query,required"`
	Scope *string `json:"scope,omitempty" jsonschema:"Restrict to one scope: session|project|user"`
	Kind  *string `json:"kind,omitempty" jsonschema:"Filter by kind"`
	Limit int     `json:"limit,omitempty" jsonschema:"Max results (default 10)"`
}

type GetRecordInput struct {
	RecordID string  `json:"record_id" jsonschema:"Record UUID,required"`
	Scope    *string `json:"scope,omitempty" jsonschema:"Scope hint to skip the partition walk"`
}

type ForgetRecordInput struct {
	RecordID string  `json:"record_id" jsonschema:"Record UUID,required"`
	Scope    *string `json:"scope,omitempty" jsonschema:"Scope hint"`
}

type PromoteRecordInput struct {
	RecordID string  `json:"record_id" jsonschema:"Record UUID to promote,required"`
	Target   string  `json:"target" jsonschema:"Target scope: project|user,required"`
	Scope    *string `json:"scope,omitempty" jsonschema:"Current scope hint"`
}

type ConsolidateInput struct {
	Scope  *string `json:"scope,omitempty" jsonschema:"Restrict to one scope"`
	DryRun bool    `json:"dry_run,omitempty" jsonschema:"Report what would happen without writing"`
}

type EvolveInput struct {
	DryRun   bool   `json:"dry_run,omitempty" jsonschema:"Propose without applying"`
	Lookback string `json:"lookback,omitempty" jsonschema:"Analysis window as a Go duration, e.g. 336h"`
}

type FeedbackInput struct {
	RetrievalID string `json:"retrieval_id" jsonschema:"Retrieval log UUID returned by recall,required"`
	Useful      bool   `json:"useful" jsonschema:"Whether the retrieval was useful"`
}

type PeekInput struct {
	Scope string `json:"scope" jsonschema:"Scope to inspect: session|project|user,required"`
	Limit int    `json:"limit,omitempty" jsonschema:"Max results"`
}

type StatsInput struct{}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "store_record",
		Description: "Store a new memory record with automatic embedding. Importance may be supplied; it is scored from the record's signals when omitted.",
	}, s.storeRecord)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "recall_records",
		Description: "Recall records by natural language query across scopes. Returned records are reinforced; the retrieval is logged for feedback.",
	}, s.recallRecords)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_record",
		Description: "Retrieve a specific record by its ID without reinforcing it.",
	}, s.getRecord)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "forget_record",
		Description: "Tombstone a record. Its content is erased; the id and audit trail remain.",
	}, s.forgetRecord)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "promote_record",
		Description: "Promote an eligible record one scope outward (session to project, project to user). Near-duplicates in the target scope are merged instead.",
	}, s.promoteRecord)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "consolidate",
		Description: "Run a maintenance pass: decay-based archival, promotion sweep, duplicate merging, forgetting. Supports dry_run.",
	}, s.consolidate)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "evolve",
		Description: "Analyze retrieval feedback and apply bounded tuning adjustments to scope weights, strategy and half-lives. Supports dry_run.",
	}, s.evolve)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "retrieval_feedback",
		Description: "Mark a logged retrieval as useful or not. Feedback drives the evolution loop.",
	}, s.feedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "peek_records",
		Description: "List the strongest records in a scope without reinforcing them.",
	}, s.peek)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "memory_stats",
		Description: "Per-scope record counts, kind and status breakdowns, and average importance.",
	}, s.stats)
}

func (s *Server) storeRecord(ctx context.Context, req *mcp.CallToolRequest, input *StoreRecordInput) (*mcp.CallToolResult, any, error) {
	kind := record.Kind(input.Kind)
	if kind == "" {
		kind = record.KindEpisodic
	}
	scope := record.Scope(input.Scope)
	if scope == "" {
		scope = record.ScopeSession
	}

	rec, err := s.eng.Store(ctx, engine.StoreInput{
		Content:    input.Content,
		Kind:       kind,
		Scope:      scope,
		Tags:       input.Tags,
		Importance: input.Importance,
		Confidence: input.Confidence,
		SessionID:  input.SessionID,
		ProjectID:  input.ProjectID,
		Metadata:   input.Metadata,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("store record: %w", err)
	}

	return makeTextResult(fmt.Sprintf("Stored record %s (scope: %s, kind: %s, importance: %.2f)",
		rec.ID, rec.Scope, rec.Kind, rec.Importance)), nil, nil
}

func (s *Server) recallRecords(ctx context.Context, req *mcp.CallToolRequest, input *RecallInput) (*mcp.CallToolResult, any, error) {
	opts := recall.Options{Limit: input.Limit}
	if input.Scope != nil {
		sc := record.Scope(*input.Scope)
		opts.Scope = &sc
	}
	if input.Kind != nil {
		k := record.Kind(*input.Kind)
		opts.Kind = &k
	}

	resp, err := s.eng.Recall(ctx, input.Query, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("recall: %w", err)
	}

	return makeJSONResult(resp)
}

func (s *Server) getRecord(ctx context.Context, req *mcp.CallToolRequest, input *GetRecordInput) (*mcp.CallToolResult, any, error) {
	id, err := uuid.Parse(input.RecordID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid record_id: %w", err)
	}

	rec, err := s.eng.Get(ctx, scopeHint(input.Scope), id)
	if err != nil {
		return nil, nil, fmt.Errorf("get record: %w", err)
	}

	return makeJSONResult(rec)
}

func (s *Server) forgetRecord(ctx context.Context, req *mcp.CallToolRequest, input *ForgetRecordInput) (*mcp.CallToolResult, any, error) {
	id, err := uuid.Parse(input.RecordID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid record_id: %w", err)
	}

	if _, err := s.eng.Forget(ctx, scopeHint(input.Scope), id); err != nil {
		return nil, nil, fmt.Errorf("forget: %w", err)
	}

	return makeTextResult(fmt.Sprintf("Forgot record %s", id)), nil, nil
}

func (s *Server) promoteRecord(ctx context.Context, req *mcp.CallToolRequest, input *PromoteRecordInput) (*mcp.CallToolResult, any, error) {
	id, err := uuid.Parse(input.RecordID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid record_id: %w", err)
	}

	result, err := s.eng.Promote(ctx, scopeHint(input.Scope), id, record.Scope(input.Target))
	if err != nil {
		return nil, nil, fmt.Errorf("promote: %w", err)
	}

	return makeTextResult(fmt.Sprintf("Record %s: %s into scope %s (result id: %s)",
		id, result.Action, result.Target, result.Record.ID)), nil, nil
}

func (s *Server) consolidate(ctx context.Context, req *mcp.CallToolRequest, input *ConsolidateInput) (*mcp.CallToolResult, any, error) {
	report, err := s.eng.Consolidate(ctx, scopeHint(input.Scope), input.DryRun)
	if err != nil {
		return nil, nil, fmt.Errorf("consolidate: %w", err)
	}

	return makeJSONResult(report)
}

func (s *Server) evolve(ctx context.Context, req *mcp.CallToolRequest, input *EvolveInput) (*mcp.CallToolResult, any, error) {
	var lookback time.Duration
	if input.Lookback != "" {
		d, err := time.ParseDuration(input.Lookback)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid lookback: %w", err)
		}
		lookback = d
	}

	outcome, err := s.eng.Evolve(ctx, input.DryRun, lookback)
	if err != nil {
		return nil, nil, fmt.Errorf("evolve: %w", err)
	}

	return makeJSONResult(outcome)
}

func (s *Server) feedback(ctx context.Context, req *mcp.CallToolRequest, input *FeedbackInput) (*mcp.CallToolResult, any, error) {
	id, err := uuid.Parse(input.RetrievalID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid retrieval_id: %w", err)
	}

	if err := s.eng.Feedback(ctx, id, input.Useful); err != nil {
		return nil, nil, fmt.Errorf("feedback: %w", err)
	}

	return makeTextResult(fmt.Sprintf("Recorded feedback for retrieval %s: useful=%v", id, input.Useful)), nil, nil
}

func (s *Server) peek(ctx context.Context, req *mcp.CallToolRequest, input *PeekInput) (*mcp.CallToolResult, any, error) {
	scope := record.Scope(input.Scope)
	if !record.ValidScope(scope) {
		return nil, nil, fmt.Errorf("invalid scope %q", input.Scope)
	}

	peeked, err := s.eng.Peek(ctx, scope, input.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("peek: %w", err)
	}

	return makeJSONResult(peeked)
}

func (s *Server) stats(ctx context.Context, req *mcp.CallToolRequest, input *StatsInput) (*mcp.CallToolResult, any, error) {
	stats, err := s.eng.Stats(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("stats: %w", err)
	}

	return makeJSONResult(stats)
}

func scopeHint(v *string) *record.Scope {
	if v == nil || *v == "" {
		return nil
	}
	sc := record.Scope(*v)
	return &sc
}

// Helper functions

func makeTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func makeJSONResult(data any) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}, nil, nil
}
