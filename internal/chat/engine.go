// Package chat owns the per-user workspaces behind the HTTP and websocket
// surfaces: a conversation session plus its persona and document corpus.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/conversation"
	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/internal/metrics"
	"github.com/genai-pages/backend/internal/storage"
	"github.com/genai-pages/backend/internal/storage/models"
	"github.com/genai-pages/backend/pkg/logger"
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrInvalidMode       = errors.New("invalid workspace mode")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrWrongMode         = errors.New("operation not available in this mode")
)

// Mode decides how turns are scoped: free or persona chat, or grounded in
// uploaded documents.
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeDocuments Mode = "documents"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeChat:
		return ModeChat, nil
	case ModeDocuments:
		return ModeDocuments, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

type workspace struct {
	mu        sync.Mutex
	id        string
	mode      Mode
	persona   conversation.Persona
	corpus    *conversation.Corpus
	digests   map[string]string
	session   *conversation.Session
	createdAt time.Time
	lastUsed  time.Time
}

func (w *workspace) scope() conversation.Scope {
	if w.mode == ModeDocuments {
		return conversation.Scope{Persona: w.persona, Corpus: w.corpus}
	}
	return conversation.Scope{Persona: w.persona}
}

type Engine struct {
	completer  conversation.Completer
	cache      *extraction.Cache
	turns      storage.TurnRecorder
	sessionCfg conversation.Config

	mu         sync.RWMutex
	workspaces map[string]*workspace
	now        func() time.Time
}

// NewEngine wires the engine. turns may be nil when the storage backend
// keeps no turn log.
func NewEngine(completer conversation.Completer, cache *extraction.Cache, turns storage.TurnRecorder, cfg conversation.Config) *Engine {
	return &Engine{
		completer:  completer,
		cache:      cache,
		turns:      turns,
		sessionCfg: cfg,
		workspaces: make(map[string]*workspace),
		now:        time.Now,
	}
}

func (e *Engine) Create(mode Mode, persona conversation.Persona) (*Snapshot, error) {
	if mode != ModeChat && mode != ModeDocuments {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if !persona.Valid() {
		return nil, fmt.Errorf("%w: %d", conversation.ErrUnknownPersona, int(persona))
	}

	now := e.now()
	w := &workspace{
		id:        uuid.New().String(),
		mode:      mode,
		persona:   persona,
		corpus:    conversation.NewCorpus(),
		digests:   make(map[string]string),
		session:   conversation.NewSession(e.completer, e.sessionCfg),
		createdAt: now,
		lastUsed:  now,
	}

	e.mu.Lock()
	e.workspaces[w.id] = w
	count := len(e.workspaces)
	e.mu.Unlock()
	metrics.ActiveWorkspaces.Set(float64(count))

	logger.Info("Workspace created",
		zap.String("workspace_id", w.id),
		zap.String("mode", string(mode)),
		zap.String("persona", persona.String()),
	)

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot(), nil
}

func (e *Engine) lookup(id string) (*workspace, error) {
	e.mu.RLock()
	w, ok := e.workspaces[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}
	return w, nil
}

// acquire locks the workspace for the caller, who must unlock it.
func (e *Engine) acquire(id string) (*workspace, error) {
	w, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.lastUsed = e.now()
	return w, nil
}

func (e *Engine) Get(id string) (*Snapshot, error) {
	w, err := e.acquire(id)
	if err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	return w.snapshot(), nil
}

func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	if _, ok := e.workspaces[id]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}
	delete(e.workspaces, id)
	count := len(e.workspaces)
	e.mu.Unlock()

	metrics.ActiveWorkspaces.Set(float64(count))
	logger.Info("Workspace deleted", zap.String("workspace_id", id))
	return nil
}

// Ask runs one turn. Turns on the same workspace are serialized.
func (e *Engine) Ask(ctx context.Context, id, message string) (*TurnResult, error) {
	w, err := e.acquire(id)
	if err != nil {
		return nil, err
	}
	defer w.mu.Unlock()

	start := time.Now()
	scope := w.scope()
	mode := string(w.mode)

	if scope.Grounded() && scope.Corpus.IsEmpty() {
		reply, history, err := w.session.AppendTurn(ctx, message, scope)
		if err != nil {
			return nil, err
		}
		metrics.TurnsTotal.WithLabelValues(mode, "no_content").Inc()
		return &TurnResult{Reply: reply, History: history, Grounded: true, Answered: false}, nil
	}

	reply, history, err := w.session.AppendTurn(ctx, message, scope)
	latency := time.Since(start)
	metrics.TurnDuration.WithLabelValues(mode).Observe(latency.Seconds())
	if err != nil {
		metrics.TurnsTotal.WithLabelValues(mode, "failed").Inc()
		logger.Warn("Turn failed",
			zap.String("workspace_id", id),
			zap.String("mode", mode),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.TurnsTotal.WithLabelValues(mode, "ok").Inc()

	result := &TurnResult{
		ID:        uuid.New().String(),
		Reply:     reply,
		History:   history,
		Grounded:  scope.Grounded(),
		Answered:  true,
		LatencyMS: int(latency.Milliseconds()),
	}

	e.recordTurn(ctx, w, message, result)

	logger.Info("Turn completed",
		zap.String("workspace_id", id),
		zap.String("turn_id", result.ID),
		zap.Int("latency_ms", result.LatencyMS),
		zap.Int("history_len", len(history)),
	)
	return result, nil
}

func (e *Engine) recordTurn(ctx context.Context, w *workspace, message string, result *TurnResult) {
	if e.turns == nil {
		return
	}

	record := &models.TurnRecord{
		ID:            result.ID,
		SessionID:     w.id,
		Mode:          string(w.mode),
		Persona:       w.persona.String(),
		UserMessage:   message,
		Reply:         result.Reply,
		Grounded:      result.Grounded,
		DocumentCount: w.corpus.Len(),
		LatencyMS:     result.LatencyMS,
		CreatedAt:     e.now(),
	}
	if err := e.turns.RecordTurn(ctx, record); err != nil {
		logger.Warn("Failed to record turn", zap.String("turn_id", result.ID), zap.Error(err))
	}
}

func (e *Engine) ClearHistory(id string) error {
	w, err := e.acquire(id)
	if err != nil {
		return err
	}
	defer w.mu.Unlock()

	w.session.Clear()
	logger.Info("History cleared", zap.String("workspace_id", id))
	return nil
}

// SetPersona switches the persona and starts a fresh conversation under it.
func (e *Engine) SetPersona(id string, persona conversation.Persona) (*Snapshot, error) {
	if !persona.Valid() {
		return nil, fmt.Errorf("%w: %d", conversation.ErrUnknownPersona, int(persona))
	}

	w, err := e.acquire(id)
	if err != nil {
		return nil, err
	}
	defer w.mu.Unlock()

	if w.persona != persona {
		w.persona = persona
		w.session.Clear()
		logger.Info("Persona switched",
			zap.String("workspace_id", id),
			zap.String("persona", persona.String()),
		)
	}
	return w.snapshot(), nil
}

// AddDocument extracts doc through the cache and adds it to the corpus. The
// extraction itself runs without holding the workspace.
func (e *Engine) AddDocument(ctx context.Context, id string, doc extraction.Document) (*DocumentResult, error) {
	w, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	if w.mode != ModeDocuments {
		return nil, fmt.Errorf("%w: documents need a %q workspace", ErrWrongMode, ModeDocuments)
	}

	extract, err := extraction.ForFile(doc.Name)
	if err != nil {
		metrics.DocumentsProcessed.WithLabelValues("upload", "unsupported").Inc()
		return nil, err
	}

	res, err := e.cache.ExtractOrFetch(ctx, doc, extract)
	if err != nil {
		metrics.DocumentsProcessed.WithLabelValues("upload", "failed").Inc()
		return nil, err
	}
	metrics.DocumentsProcessed.WithLabelValues("upload", "ok").Inc()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastUsed = e.now()
	w.corpus.Add(doc.Name, res.Text)
	w.digests[doc.Name] = res.Digest

	return &DocumentResult{
		Name:       doc.Name,
		Digest:     res.Digest,
		FromCache:  res.FromCache,
		Words:      countWords(res.Text),
		Characters: len([]rune(res.Text)),
	}, nil
}

func (e *Engine) RemoveDocument(id, name string) error {
	w, err := e.acquire(id)
	if err != nil {
		return err
	}
	defer w.mu.Unlock()

	if !w.corpus.Remove(name) {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
	}
	delete(w.digests, name)
	return nil
}

// ClearDocuments empties the corpus and the conversation grounded on it.
func (e *Engine) ClearDocuments(id string) error {
	w, err := e.acquire(id)
	if err != nil {
		return err
	}
	defer w.mu.Unlock()

	w.corpus.Clear()
	w.digests = make(map[string]string)
	w.session.Clear()
	return nil
}

func (e *Engine) Stats(id string) (Stats, error) {
	w, err := e.acquire(id)
	if err != nil {
		return Stats{}, err
	}
	defer w.mu.Unlock()
	return w.stats(), nil
}

// Turns returns the recorded turn log of a workspace, oldest first.
func (e *Engine) Turns(ctx context.Context, id string, limit int) ([]models.TurnRecord, error) {
	if _, err := e.lookup(id); err != nil {
		return nil, err
	}
	if e.turns == nil {
		return []models.TurnRecord{}, nil
	}
	return e.turns.ListTurns(ctx, id, limit)
}

// Evict drops workspaces unused for longer than idle and returns how many
// were removed.
func (e *Engine) Evict(idle time.Duration) int {
	cutoff := e.now().Add(-idle)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, w := range e.workspaces {
		if !w.mu.TryLock() {
			continue
		}
		stale := w.lastUsed.Before(cutoff)
		w.mu.Unlock()
		if stale {
			delete(e.workspaces, id)
			removed++
		}
	}

	metrics.ActiveWorkspaces.Set(float64(len(e.workspaces)))
	if removed > 0 {
		logger.Info("Idle workspaces evicted", zap.Int("count", removed))
	}
	return removed
}

func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.workspaces)
}
