package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

// Config holds chunking parameters.
type Config struct {
	MaxChunkSize int // maximum chunk length in bytes
	Overlap      int // bytes carried over from the end of the previous chunk
}

// DefaultConfig returns default chunking parameters.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize: 1000,
		Overlap:      100,
	}
}

// Fragment is one ordered piece of a split document, before embedding.
type Fragment struct {
	Ordinal    int
	Text       string
	TokenCount int
}

// Chunker splits document content into bounded, overlapping fragments.
// Splitting is deterministic: identical input and config always produce the
// identical fragment sequence.
type Chunker struct {
	cfg Config
}

// New creates a chunker, applying defaults for zero-valued fields.
func New(cfg Config) (*Chunker, error) {
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = DefaultConfig().MaxChunkSize
	}
	if cfg.MaxChunkSize < 0 {
		return nil, memory.NewValidation("max chunk size must be positive, got %d", cfg.MaxChunkSize)
	}
	if cfg.Overlap < 0 {
		return nil, memory.NewValidation("overlap must be >= 0, got %d", cfg.Overlap)
	}
	if cfg.Overlap >= cfg.MaxChunkSize {
		return nil, memory.NewValidation("overlap (%d) must be smaller than max chunk size (%d)", cfg.Overlap, cfg.MaxChunkSize)
	}
	return &Chunker{cfg: cfg}, nil
}

// Split breaks content into an ordered, non-empty fragment sequence.
// Content shorter than one chunk yields exactly one fragment.
func (c *Chunker) Split(content string) ([]Fragment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, memory.NewValidation("document content is empty")
	}

	if len(content) <= c.cfg.MaxChunkSize {
		text := strings.TrimSpace(content)
		return []Fragment{{Ordinal: 0, Text: text, TokenCount: approxTokens(text)}}, nil
	}

	var fragments []Fragment
	lines := strings.Split(content, "\n")

	var current strings.Builder
	flush := func() {
		text := strings.TrimSpace(current.String())
		if text == "" {
			return
		}
		fragments = append(fragments, Fragment{
			Ordinal:    len(fragments),
			Text:       text,
			TokenCount: approxTokens(text),
		})
	}

	for _, line := range lines {
		lineLen := len(line) + 1

		// Oversized single lines are split hard at the chunk boundary,
		// backed off to the nearest rune start so no fragment carries a
		// torn multi-byte character.
		for lineLen > c.cfg.MaxChunkSize {
			flush()
			current.Reset()
			cut := c.cfg.MaxChunkSize
			for cut < len(line) && cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				// A single rune wider than the chunk size still moves whole.
				_, cut = utf8.DecodeRuneInString(line)
			}
			head, rest := line[:cut], line[cut:]
			current.WriteString(head)
			flush()
			current.Reset()
			line = rest
			lineLen = len(line) + 1
		}

		if current.Len() > 0 && current.Len()+lineLen > c.cfg.MaxChunkSize {
			flush()

			// Start the next chunk with the tail of the previous one so
			// boundary-straddling statements stay searchable.
			tail := current.String()
			current.Reset()
			if c.cfg.Overlap > 0 && len(tail) > c.cfg.Overlap {
				start := len(tail) - c.cfg.Overlap
				for start < len(tail) && !utf8.RuneStart(tail[start]) {
					start++
				}
				current.WriteString(tail[start:])
				current.WriteString("\n")
			}
		}

		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	if len(fragments) == 0 {
		return nil, memory.NewValidation("document content is empty")
	}
	return fragments, nil
}

// approxTokens estimates token count from whitespace-separated words. Good
// enough for reporting and batch sizing; the LLM side does its own counting.
func approxTokens(text string) int {
	return len(strings.Fields(text))
}
