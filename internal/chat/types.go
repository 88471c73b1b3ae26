package chat

import (
	"strings"
	"time"

	"github.com/genai-pages/backend/internal/conversation"
)

type TurnResult struct {
	ID      string                 `json:"id,omitempty"`
	Reply   string                 `json:"reply"`
	History []conversation.Message `json:"history"`
	// Answered is false when the reply was produced locally because there
	// was nothing to ground on.
	Answered  bool `json:"answered"`
	Grounded  bool `json:"grounded"`
	LatencyMS int  `json:"latency_ms"`
}

type DocumentResult struct {
	Name       string `json:"name"`
	Digest     string `json:"digest"`
	FromCache  bool   `json:"from_cache"`
	Words      int    `json:"words"`
	Characters int    `json:"characters"`
}

type DocumentInfo struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
}

type Stats struct {
	Documents  int `json:"documents"`
	Words      int `json:"words"`
	Characters int `json:"characters"`
	Messages   int `json:"messages"`
	Questions  int `json:"questions"`
}

type Snapshot struct {
	ID        string                 `json:"id"`
	Mode      Mode                   `json:"mode"`
	Persona   conversation.Persona   `json:"persona"`
	State     string                 `json:"state"`
	Documents []DocumentInfo         `json:"documents"`
	History   []conversation.Message `json:"history"`
	Stats     Stats                  `json:"stats"`
	CreatedAt time.Time              `json:"created_at"`
}

// snapshot must be called with w.mu held.
func (w *workspace) snapshot() *Snapshot {
	names := w.corpus.Names()
	docs := make([]DocumentInfo, 0, len(names))
	for _, name := range names {
		docs = append(docs, DocumentInfo{Name: name, Digest: w.digests[name]})
	}

	return &Snapshot{
		ID:        w.id,
		Mode:      w.mode,
		Persona:   w.persona,
		State:     w.session.State().String(),
		Documents: docs,
		History:   w.session.History(),
		Stats:     w.stats(),
		CreatedAt: w.createdAt,
	}
}

func (w *workspace) stats() Stats {
	cs := w.corpus.Stats()
	return Stats{
		Documents:  cs.Documents,
		Words:      cs.Words,
		Characters: cs.Characters,
		Messages:   w.session.Len(),
		Questions:  w.session.Questions(),
	}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
