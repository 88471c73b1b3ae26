package conversation

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Corpus maps document names to extracted text. Documents are always
// rendered in name order so the same set yields the same prompt.
type Corpus struct {
	docs map[string]string
}

type CorpusStats struct {
	Documents  int `json:"documents"`
	Words      int `json:"words"`
	Characters int `json:"characters"`
}

func NewCorpus() *Corpus {
	return &Corpus{docs: make(map[string]string)}
}

// Add stores text under name, replacing any earlier document of that name.
func (c *Corpus) Add(name, text string) {
	if c.docs == nil {
		c.docs = make(map[string]string)
	}
	c.docs[name] = text
}

func (c *Corpus) Remove(name string) bool {
	if _, ok := c.docs[name]; !ok {
		return false
	}
	delete(c.docs, name)
	return true
}

func (c *Corpus) Clear() {
	c.docs = make(map[string]string)
}

func (c *Corpus) Get(name string) (string, bool) {
	text, ok := c.docs[name]
	return text, ok
}

func (c *Corpus) Names() []string {
	names := make([]string, 0, len(c.docs))
	for name := range c.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Corpus) Len() int {
	return len(c.docs)
}

// IsEmpty reports whether there is no usable text to ground on.
func (c *Corpus) IsEmpty() bool {
	if c == nil {
		return true
	}
	for _, text := range c.docs {
		if strings.TrimSpace(text) != "" {
			return false
		}
	}
	return true
}

// Text concatenates every document under a "=== Content from NAME ===" line.
func (c *Corpus) Text() string {
	var sb strings.Builder
	for _, name := range c.Names() {
		sb.WriteString("\n\n=== Content from ")
		sb.WriteString(name)
		sb.WriteString(" ===\n")
		sb.WriteString(c.docs[name])
		sb.WriteString("\n")
	}
	return sb.String()
}

func (c *Corpus) Stats() CorpusStats {
	stats := CorpusStats{Documents: len(c.docs)}
	for _, text := range c.docs {
		stats.Words += len(strings.Fields(text))
		stats.Characters += utf8.RuneCountInString(text)
	}
	return stats
}
