package client

import "time"

type Record struct {
	ID             string         `json:"id"`
	Content        string         `json:"content"`
	Kind           string         `json:"kind"`
	Scope          string         `json:"scope"`
	Tags           []string       `json:"tags"`
	Importance     float64        `json:"importance"`
	Confidence     float64        `json:"confidence"`
	AccessCount    int            `json:"access_count"`
	Status         string         `json:"status"`
	Origins        []string       `json:"origins,omitempty"`
	SessionID      *string        `json:"session_id,omitempty"`
	ProjectID      *string        `json:"project_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type StoreRequest struct {
	Content    string         `json:"content"`
	Kind       string         `json:"kind"`
	Scope      string         `json:"scope"`
	Tags       []string       `json:"tags,omitempty"`
	Importance *float64       `json:"importance,omitempty"`
	Confidence float64        `json:"confidence"`
	SessionID  *string        `json:"session_id,omitempty"`
	ProjectID  *string        `json:"project_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type RecallRequest struct {
	Query string  `json:"query"`
	Scope *string `json:"scope,omitempty"`
	Kind  *string `json:"kind,omitempty"`
	Limit int     `json:"limit,omitempty"`
}

type RecallResult struct {
	Record      Record  `json:"record"`
	Score       float64 `json:"score"`
	TextScore   float64 `json:"text_score"`
	VectorScore float64 `json:"vector_score"`
	Strength    float64 `json:"strength"`
}

type RecallResponse struct {
	Results  []RecallResult `json:"results"`
	Strategy string         `json:"strategy"`
	LogID    string         `json:"log_id"`
}

type FusedRequest struct {
	Query string `json:"query"`
	By    string `json:"by,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type FusedResponse struct {
	Results []RecallResult `json:"results"`
}

type PromoteRequest struct {
	Scope  *string `json:"scope,omitempty"`
	Target string  `json:"target"`
}

type PromoteResult struct {
	Record Record `json:"record"`
	Action string `json:"action"`
	Target string `json:"target"`
}

type ConsolidateRequest struct {
	Scope  *string `json:"scope,omitempty"`
	DryRun bool    `json:"dry_run,omitempty"`
}

type ConsolidateReport struct {
	DryRun         bool      `json:"dry_run"`
	Refreshed      int       `json:"refreshed"`
	Archived       int       `json:"archived"`
	Activated      int       `json:"activated"`
	Promoted       int       `json:"promoted"`
	Merged         int       `json:"merged"`
	Queued         int       `json:"queued"`
	TasksProcessed int       `json:"tasks_processed"`
	Forgotten      int       `json:"forgotten"`
	Errors         []string  `json:"errors,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

type EvolveRequest struct {
	DryRun   bool   `json:"dry_run,omitempty"`
	Lookback string `json:"lookback,omitempty"`
}

type Proposal struct {
	Param      string `json:"param"`
	Current    any    `json:"current"`
	Proposed   any    `json:"proposed"`
	Reason     string `json:"reason"`
	SampleSize int    `json:"sample_size"`
}

type EvolveOutcome struct {
	Dry        bool       `json:"dry"`
	DataPoints int        `json:"data_points"`
	Proposals  []Proposal `json:"proposals"`
	Errors     []string   `json:"errors,omitempty"`
}

type FeedbackRequest struct {
	Useful bool `json:"useful"`
}

type Peeked struct {
	Record   Record  `json:"record"`
	Strength float64 `json:"strength"`
}

type PeekResponse struct {
	Records []Peeked `json:"records"`
}

type ScopeStats struct {
	Total         int            `json:"total"`
	ByKind        map[string]int `json:"by_kind"`
	ByStatus      map[string]int `json:"by_status"`
	AvgImportance float64        `json:"avg_importance"`
}

type TuningState struct {
	ScopeWeights       map[string]float64 `json:"scope_weights"`
	HalfLives          map[string]float64 `json:"half_lives"`
	PromoteImportance  float64            `json:"promote_importance"`
	PromoteAccessCount int                `json:"promote_access_count"`
	DefaultStrategy    string             `json:"default_strategy"`
}

type Edge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Relation  string    `json:"relation"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}

type Transition struct {
	ID       string    `json:"id"`
	RecordID string    `json:"record_id"`
	Scope    string    `json:"scope"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}
