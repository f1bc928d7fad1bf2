package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	ErrStoreNotConfigured = goerr.New("vector store is not configured")
	ErrInvalidTopK        = goerr.New("top-k must not be negative")
)

// Context keys for error values
const (
	CaseIDKey = "case_id"
	RuleIDKey = "rule_id"
	SourceKey = "source"
)
