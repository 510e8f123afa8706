package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/IAmMonkeyBoy/context-memory-store/internal/tracing"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/llm"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

const analysisSystemPrompt = `You analyze a project's memory. Answer using only
the provided context chunks; say so when the context is insufficient.`

// AnalysisRequest describes a streamed analysis: the question, and how much
// context to retrieve for it.
type AnalysisRequest struct {
	Question     string
	ContextLimit int
	MinScore     float64
}

// StreamAnalysis retrieves context for the question and streams the model's
// analysis token by token. The channel closes when the stream ends;
// cancelling ctx stops it early.
func (e *Engine) StreamAnalysis(ctx context.Context, projectID string, req AnalysisRequest) (<-chan llm.Token, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, memory.NewValidation("question is empty")
	}

	retrieved, err := e.QueryContext(ctx, projectID, req.Question, QueryOptions{
		Limit:                req.ContextLimit,
		MinScore:             req.MinScore,
		IncludeRelationships: true,
	})
	if err != nil {
		return nil, err
	}

	// Re-admit for the streaming phase: retrieval released its registration,
	// and the fence may have closed in between.
	_, done, err := e.admit(projectID)
	if err != nil {
		return nil, err
	}

	ctx = tracing.NewOperationContext(ctx, projectID)
	logger := tracing.LoggerFromContext(ctx, e.logger)

	tokens, err := e.llm.StreamChatComplete(ctx, analysisSystemPrompt, analysisPrompt(req.Question, retrieved))
	if err != nil {
		done()
		return nil, err
	}

	out := make(chan llm.Token)
	go func() {
		defer close(out)
		defer done()

		for tok := range tokens {
			select {
			case out <- tok:
			case <-ctx.Done():
				logger.Debug().Msg("Analysis stream cancelled")
				return
			}
		}
	}()
	return out, nil
}

func analysisPrompt(question string, retrieved *ContextResult) string {
	var sb strings.Builder

	sb.WriteString("Context chunks:\n")
	if len(retrieved.Chunks) == 0 {
		sb.WriteString("(none)\n")
	}
	for i, c := range retrieved.Chunks {
		fmt.Fprintf(&sb, "%d. [%s#%d] %s\n", i+1, c.DocumentID, c.Ordinal, c.Text)
	}

	if len(retrieved.Relationships) > 0 {
		sb.WriteString("\nKnown relationships:\n")
		for _, r := range retrieved.Relationships {
			fmt.Fprintf(&sb, "- %s %s %s\n", r.Source, r.Type, r.Target)
		}
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}
