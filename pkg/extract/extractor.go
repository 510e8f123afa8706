package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/llm"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

const systemPrompt = `You extract entity relationships from text.
Reply with a JSON array only, no prose. Each element:
{"type": "<relationship verb>", "source": "<entity>", "target": "<entity>", "weight": <0..1>}
Use short canonical entity names. Return [] when the text contains no relationships.`

// relationshipSchema validates the model's reply before it is trusted.
const relationshipSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["type", "source", "target"],
		"properties": {
			"type":   {"type": "string", "minLength": 1},
			"source": {"type": "string", "minLength": 1},
			"target": {"type": "string", "minLength": 1},
			"weight": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}
}`

// Extractor turns chunk text into graph relationships via an LLM chat
// completion. Malformed model output is not an error: the chunk simply
// contributes no relationships and a warning is logged. Transport failures
// are returned so the caller can retry or degrade.
type Extractor struct {
	svc    llm.Service
	schema gojsonschema.JSONLoader
	logger zerolog.Logger
}

// New creates an extractor on top of svc.
func New(svc llm.Service, logger zerolog.Logger) *Extractor {
	return &Extractor{
		svc:    svc,
		schema: gojsonschema.NewStringLoader(relationshipSchema),
		logger: logger.With().Str("component", "extractor").Logger(),
	}
}

// Extract returns the relationships found in chunkText, tagged with
// documentID.
func (e *Extractor) Extract(ctx context.Context, documentID, chunkText string) ([]memory.Relationship, error) {
	reply, err := e.svc.ChatComplete(ctx, systemPrompt, chunkText)
	if err != nil {
		return nil, err
	}

	payload := stripCodeFence(reply)
	if payload == "" {
		e.warnMalformed(documentID, reply, "empty reply")
		return nil, nil
	}

	if err := e.validate(payload); err != nil {
		e.warnMalformed(documentID, reply, err.Error())
		return nil, nil
	}

	var raw []struct {
		Type   string  `json:"type"`
		Source string  `json:"source"`
		Target string  `json:"target"`
		Weight float64 `json:"weight"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		e.warnMalformed(documentID, reply, err.Error())
		return nil, nil
	}

	relationships := make([]memory.Relationship, 0, len(raw))
	for _, r := range raw {
		weight := r.Weight
		if weight == 0 {
			weight = 1
		}
		relationships = append(relationships, memory.Relationship{
			Type:       strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(r.Type), " ", "_")),
			Source:     strings.TrimSpace(r.Source),
			Target:     strings.TrimSpace(r.Target),
			Weight:     weight,
			DocumentID: documentID,
		})
	}
	return relationships, nil
}

func (e *Extractor) validate(payload string) error {
	result, err := gojsonschema.Validate(e.schema, gojsonschema.NewStringLoader(payload))
	if err != nil {
		return err
	}
	if !result.Valid() {
		var errMsg string
		for i, verr := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += verr.String()
		}
		return &validationError{msg: errMsg}
	}
	return nil
}

func (e *Extractor) warnMalformed(documentID, reply, reason string) {
	preview := reply
	if len(preview) > 200 {
		preview = preview[:200]
	}
	e.logger.Warn().
		Str("document_id", documentID).
		Str("reason", reason).
		Str("reply_preview", preview).
		Msg("Discarding malformed extraction output")
}

type validationError struct{ msg string }

func (v *validationError) Error() string { return v.msg }

// stripCodeFence unwraps a ```json ... ``` fenced reply, a habit chat models
// never fully drop.
func stripCodeFence(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
