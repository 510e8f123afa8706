package extract

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/llm"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

func newFakeExtractor(reply string, err error) *Extractor {
	fake := llm.NewFake(32)
	fake.ChatFn = func(system, user string) (string, error) {
		return reply, err
	}
	return New(fake, zerolog.Nop())
}

func TestExtractParsesRelationships(t *testing.T) {
	e := newFakeExtractor(`[
		{"type": "relates to", "source": "A", "target": "B", "weight": 0.9},
		{"type": "relates to", "source": "B", "target": "C"}
	]`, nil)

	rels, err := e.Extract(context.Background(), "doc1", "A relates to B. B relates to C.")
	require.NoError(t, err)
	require.Len(t, rels, 2)

	assert.Equal(t, "RELATES_TO", rels[0].Type)
	assert.Equal(t, "A", rels[0].Source)
	assert.Equal(t, "B", rels[0].Target)
	assert.Equal(t, 0.9, rels[0].Weight)
	assert.Equal(t, "doc1", rels[0].DocumentID)

	assert.Equal(t, 1.0, rels[1].Weight, "missing weight defaults to 1")
}

func TestExtractUnwrapsCodeFence(t *testing.T) {
	e := newFakeExtractor("```json\n[{\"type\": \"OWNS\", \"source\": \"A\", \"target\": \"B\"}]\n```", nil)

	rels, err := e.Extract(context.Background(), "doc1", "A owns B")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "OWNS", rels[0].Type)
}

func TestExtractMalformedOutputYieldsEmptyNotError(t *testing.T) {
	cases := map[string]string{
		"prose":         "Sure! Here are the relationships I found.",
		"wrong shape":   `{"relationships": []}`,
		"missing field": `[{"type": "OWNS", "source": "A"}]`,
		"empty reply":   "",
		"bad weight":    `[{"type": "OWNS", "source": "A", "target": "B", "weight": 7}]`,
	}

	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			e := newFakeExtractor(reply, nil)
			rels, err := e.Extract(context.Background(), "doc1", "text")
			require.NoError(t, err)
			assert.Empty(t, rels)
		})
	}
}

func TestExtractEmptyArrayIsValid(t *testing.T) {
	e := newFakeExtractor("[]", nil)
	rels, err := e.Extract(context.Background(), "doc1", "nothing relates here")
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestExtractPropagatesTransportErrors(t *testing.T) {
	e := newFakeExtractor("", memory.NewUnavailable(nil, "llm down"))
	_, err := e.Extract(context.Background(), "doc1", "text")
	require.Error(t, err)
	assert.True(t, memory.IsUnavailable(err))
}
