// Package apptest holds in-memory stand-ins for the stores and gateways the
// services depend on.
package apptest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"pdfchat/internal/model"
)

// DB backs both Documents and Messages so deletes cascade the way the MySQL
// transaction does.
type DB struct {
	// MessageErr, when set, fails every message write.
	MessageErr error

	mu       sync.Mutex
	docs     map[string]model.Document
	messages []model.ChatMessage
	nextID   uint
}

func NewDB() *DB {
	return &DB{docs: make(map[string]model.Document)}
}

func (db *DB) Documents() *Documents { return &Documents{db: db} }

func (db *DB) Messages() *Messages { return &Messages{db: db} }

type Documents struct{ db *DB }

func (d *Documents) Create(_ context.Context, doc *model.Document) error {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	d.db.docs[doc.ID] = *doc
	return nil
}

func (d *Documents) CountByUserID(_ context.Context, userID uint) (int64, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	var n int64
	for _, doc := range d.db.docs {
		if doc.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (d *Documents) ListByUserID(_ context.Context, userID uint) ([]model.Document, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	var out []model.Document
	for _, doc := range d.db.docs {
		if doc.UserID == userID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Documents) GetByIDAndUserID(_ context.Context, id string, userID uint) (*model.Document, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	doc, ok := d.db.docs[id]
	if !ok || doc.UserID != userID {
		return nil, nil
	}
	return &doc, nil
}

func (d *Documents) DeleteByID(_ context.Context, id string) error {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	delete(d.db.docs, id)
	return nil
}

func (d *Documents) DeleteWithMessages(_ context.Context, id string, userID uint) error {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	if doc, ok := d.db.docs[id]; !ok || doc.UserID != userID {
		return errors.New("document not found")
	}
	kept := d.db.messages[:0]
	for _, m := range d.db.messages {
		if m.DocumentID != id {
			kept = append(kept, m)
		}
	}
	d.db.messages = kept
	delete(d.db.docs, id)
	return nil
}

func (d *Documents) Count() int {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	return len(d.db.docs)
}

type Messages struct{ db *DB }

func (m *Messages) Create(_ context.Context, msg *model.ChatMessage) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.MessageErr != nil {
		return m.db.MessageErr
	}
	m.db.nextID++
	msg.ID = m.db.nextID
	m.db.messages = append(m.db.messages, *msg)
	return nil
}

// ListByDocumentID keeps the newest limit messages, oldest first.
func (m *Messages) ListByDocumentID(_ context.Context, documentID string, limit int) ([]model.ChatMessage, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.ChatMessage
	for _, msg := range m.db.messages {
		if msg.DocumentID == documentID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type Publisher struct {
	Err error

	mu        sync.Mutex
	published []model.ChatMessage
}

func (p *Publisher) Publish(_ context.Context, msg model.ChatMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.published = append(p.published, msg)
	return nil
}

func (p *Publisher) Published() []model.ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.ChatMessage(nil), p.published...)
}

type Fetcher struct {
	Data  []byte
	Err   error
	Calls int
}

func (f *Fetcher) Fetch(context.Context, string) ([]byte, error) {
	f.Calls++
	return f.Data, f.Err
}

type EmbedderLoader struct {
	Embedder embeddings.Embedder
	Err      error
	Calls    int
}

func (l *EmbedderLoader) Load() (embeddings.Embedder, error) {
	l.Calls++
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Embedder, nil
}

type Models struct {
	LLM llms.Model
	Err error
}

func (m Models) Model() (llms.Model, error) {
	return m.LLM, m.Err
}

type Files struct {
	Err     error
	Deleted []string
}

func (f *Files) Delete(_ context.Context, url string) error {
	f.Deleted = append(f.Deleted, url)
	return f.Err
}
