package http

import "github.com/fyrsmithlabs/taxrag/internal/rag"

// AnswerRequest is the request body for POST /api/v1/answer.
type AnswerRequest struct {
	Question string `json:"question"`
	NResults *int   `json:"n_results,omitempty"`
}

// AnswerResponse is the response body for POST /api/v1/answer.
type AnswerResponse struct {
	Answer    string       `json:"answer"`
	Sources   []rag.Source `json:"sources"`
	ErrorKind string       `json:"error_kind,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Collection string `json:"collection,omitempty"`
	Documents  *int   `json:"documents,omitempty"`
}
