// Package collab holds the shared canvas documents edited by collaborators.
// A document is a set of named text fields and named array fields; every
// mutation runs inside a transaction that either commits whole or not at all.
package collab

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfRange is returned when a transaction addresses a position outside
// the current field bounds.
var ErrOutOfRange = errors.New("position out of range")

// Document is safe for concurrent use.
type Document struct {
	mu      sync.RWMutex
	id      string
	version uint64
	texts   map[string][]rune
	arrays  map[string][]any
}

type snapshot struct {
	ID      string            `json:"id"`
	Version uint64            `json:"version"`
	Texts   map[string]string `json:"texts"`
	Arrays  map[string][]any  `json:"arrays"`
}

func NewDocument(id string) *Document {
	return &Document{
		id:     id,
		texts:  make(map[string][]rune),
		arrays: make(map[string][]any),
	}
}

// DecodeDocument restores a document from Snapshot output.
func DecodeDocument(data []byte) (*Document, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode document snapshot: %w", err)
	}
	doc := NewDocument(snap.ID)
	doc.version = snap.Version
	for name, text := range snap.Texts {
		doc.texts[name] = []rune(text)
	}
	for name, items := range snap.Arrays {
		if items == nil {
			items = []any{}
		}
		doc.arrays[name] = items
	}
	return doc, nil
}

func (d *Document) ID() string { return d.id }

func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Text returns the current value of a text field, or "" if it was never set.
func (d *Document) Text(name string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return string(d.texts[name])
}

// Array returns a copy of an array field. Missing fields read as empty.
func (d *Document) Array(name string) []any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	items := d.arrays[name]
	out := make([]any, len(items))
	copy(out, items)
	return out
}

// Transact runs fn against a working copy and commits it if no operation
// failed. The first failing operation aborts the whole transaction.
func (d *Document) Transact(fn func(tx *Txn)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := &Txn{
		doc:    d,
		texts:  make(map[string][]rune),
		arrays: make(map[string][]any),
	}
	fn(tx)
	if tx.err != nil {
		return tx.err
	}
	if len(tx.texts) == 0 && len(tx.arrays) == 0 {
		return nil
	}
	for name, text := range tx.texts {
		d.texts[name] = text
	}
	for name, items := range tx.arrays {
		d.arrays[name] = items
	}
	d.version++
	return nil
}

// ToJSON returns the document content keyed by field name.
func (d *Document) ToJSON() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.texts)+len(d.arrays))
	for name, text := range d.texts {
		out[name] = string(text)
	}
	for name, items := range d.arrays {
		cp := make([]any, len(items))
		copy(cp, items)
		out[name] = cp
	}
	return out
}

// Snapshot encodes the document for persistence.
func (d *Document) Snapshot() ([]byte, error) {
	d.mu.RLock()
	snap := snapshot{
		ID:      d.id,
		Version: d.version,
		Texts:   make(map[string]string, len(d.texts)),
		Arrays:  make(map[string][]any, len(d.arrays)),
	}
	for name, text := range d.texts {
		snap.Texts[name] = string(text)
	}
	for name, items := range d.arrays {
		snap.Arrays[name] = items
	}
	data, err := json.Marshal(snap)
	d.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", d.id, err)
	}
	return data, nil
}

// Txn is the mutable view handed to Transact callbacks. Operations after the
// first failure are ignored.
type Txn struct {
	doc    *Document
	texts  map[string][]rune
	arrays map[string][]any
	err    error
}

// Err reports the error that will abort the transaction, if any.
func (tx *Txn) Err() error { return tx.err }

func (tx *Txn) text(field string) []rune {
	if cur, ok := tx.texts[field]; ok {
		return cur
	}
	base := tx.doc.texts[field]
	cur := make([]rune, len(base))
	copy(cur, base)
	tx.texts[field] = cur
	return cur
}

func (tx *Txn) array(field string) []any {
	if cur, ok := tx.arrays[field]; ok {
		return cur
	}
	base := tx.doc.arrays[field]
	cur := make([]any, len(base))
	copy(cur, base)
	tx.arrays[field] = cur
	return cur
}

func (tx *Txn) fail(op, field string, pos, length int) {
	tx.err = fmt.Errorf("%s %s at %d (len %d): %w", op, field, pos, length, ErrOutOfRange)
}

func (tx *Txn) InsertText(field string, pos int, s string) {
	if tx.err != nil {
		return
	}
	cur := tx.text(field)
	if pos < 0 || pos > len(cur) {
		tx.fail("insert text", field, pos, len(cur))
		return
	}
	ins := []rune(s)
	next := make([]rune, 0, len(cur)+len(ins))
	next = append(next, cur[:pos]...)
	next = append(next, ins...)
	next = append(next, cur[pos:]...)
	tx.texts[field] = next
}

func (tx *Txn) DeleteText(field string, pos, n int) {
	if tx.err != nil {
		return
	}
	cur := tx.text(field)
	if pos < 0 || n < 0 || pos+n > len(cur) {
		tx.fail("delete text", field, pos, len(cur))
		return
	}
	next := make([]rune, 0, len(cur)-n)
	next = append(next, cur[:pos]...)
	next = append(next, cur[pos+n:]...)
	tx.texts[field] = next
}

func (tx *Txn) InsertNodes(field string, pos int, items ...any) {
	if tx.err != nil {
		return
	}
	cur := tx.array(field)
	if pos < 0 || pos > len(cur) {
		tx.fail("insert nodes", field, pos, len(cur))
		return
	}
	next := make([]any, 0, len(cur)+len(items))
	next = append(next, cur[:pos]...)
	next = append(next, items...)
	next = append(next, cur[pos:]...)
	tx.arrays[field] = next
}

func (tx *Txn) DeleteNodes(field string, pos, n int) {
	if tx.err != nil {
		return
	}
	cur := tx.array(field)
	if pos < 0 || n < 0 || pos+n > len(cur) {
		tx.fail("delete nodes", field, pos, len(cur))
		return
	}
	next := make([]any, 0, len(cur)-n)
	next = append(next, cur[:pos]...)
	next = append(next, cur[pos+n:]...)
	tx.arrays[field] = next
}

// Len returns the current length of an array field inside the transaction.
func (tx *Txn) Len(field string) int {
	if cur, ok := tx.arrays[field]; ok {
		return len(cur)
	}
	return len(tx.doc.arrays[field])
}
