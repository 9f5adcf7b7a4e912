package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taxrag/internal/rag"
)

const answerQuestionTool = "answer_question"

var errInvalidArgument = errors.New("invalid argument")

type answerQuestionInput struct {
	Question string `json:"question" jsonschema:"Question about Georgian tax or customs rules, preferably in Georgian"`
	NResults int    `json:"n_results,omitempty" jsonschema:"Number of document chunks to retrieve, 3 to 10 (default 5)"`
}

type answerQuestionOutput struct {
	Answer    string       `json:"answer"`
	Sources   []rag.Source `json:"sources"`
	ErrorKind string       `json:"error_kind,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        answerQuestionTool,
		Description: "Answer a question about Georgian tax and customs regulations from the indexed rs.ge documents, citing numbered sources",
	}, s.answerQuestion)
}

func (s *Server) answerQuestion(ctx context.Context, req *mcp.CallToolRequest, args answerQuestionInput) (*mcp.CallToolResult, answerQuestionOutput, error) {
	done := s.metrics.begin(ctx, answerQuestionTool)
	var toolErr error
	defer func() { done(toolErr) }()

	if strings.TrimSpace(args.Question) == "" {
		toolErr = fmt.Errorf("%w: %s", errInvalidArgument, rag.EmptyQuestionMessage)
		return nil, answerQuestionOutput{}, toolErr
	}
	k := args.NResults
	if k == 0 {
		k = s.config.DefaultResults
	}
	if k < s.config.MinResults || k > s.config.MaxResults {
		toolErr = fmt.Errorf("%w: n_results %d must be between %d and %d", errInvalidArgument, k, s.config.MinResults, s.config.MaxResults)
		return nil, answerQuestionOutput{}, toolErr
	}

	ans, err := s.answerer.Answer(ctx, args.Question, k)
	if err != nil {
		toolErr = fmt.Errorf("answer failed: %w", err)
		return nil, answerQuestionOutput{}, toolErr
	}
	if ans.Failed() {
		s.logger.Warn("answer generated with failure", zap.String("kind", string(ans.ErrorKind)))
		s.metrics.recordDegraded(ctx, ans.ErrorKind)
	}

	output := answerQuestionOutput{
		Answer:    ans.Answer,
		Sources:   ans.Sources,
		ErrorKind: string(ans.ErrorKind),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: formatAnswer(ans)},
		},
	}, output, nil
}

// formatAnswer renders the answer followed by its numbered sources.
func formatAnswer(ans *rag.Answer) string {
	var b strings.Builder
	b.WriteString(ans.Answer)
	if len(ans.Sources) > 0 {
		b.WriteString("\n\nწყაროები:")
		for _, src := range ans.Sources {
			fmt.Fprintf(&b, "\n[%d] %s\n    %s", src.Number, src.Title, src.URL)
		}
	}
	return b.String()
}
