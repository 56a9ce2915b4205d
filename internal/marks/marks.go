// Package marks models the browser extension's content selections ("marks")
// and the events that keep a page's mark set in sync with the server.
package marks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrInvalid = errors.New("invalid mark")

type MarkType string

const (
	TypeResource                  MarkType = "resource"
	TypeNote                      MarkType = "note"
	TypeCollection                MarkType = "collection"
	TypeExtensionWeblink          MarkType = "extensionWeblink"
	TypeNoteSelection             MarkType = "noteSelection"
	TypeResourceSelection         MarkType = "resourceSelection"
	TypeExtensionWeblinkSelection MarkType = "extensionWeblinkSelection"
)

type Scope string

const (
	ScopeBlock  Scope = "block"
	ScopeInline Scope = "inline"
)

type TextType string

const (
	TextTypeText  TextType = "text"
	TextTypeTable TextType = "table"
	TextTypeLink  TextType = "link"
	TextTypeImage TextType = "image"
	TextTypeVideo TextType = "video"
	TextTypeAudio TextType = "audio"
)

type Domain string

const (
	DomainResource                  Domain = "resource"
	DomainNote                      Domain = "note"
	DomainExtensionWeblink          Domain = "extensionWeblink"
	DomainNoteCursorSelection       Domain = "noteCursorSelection"
	DomainNoteBeforeCursorSelection Domain = "noteBeforeCursorSelection"
	DomainNoteAfterCursorSelection  Domain = "noteAfterCursorSelection"
)

type SyncMarkEventType string

const (
	EventAdd    SyncMarkEventType = "add"
	EventRemove SyncMarkEventType = "remove"
	EventReset  SyncMarkEventType = "reset"
)

type SyncStatusEventType string

const (
	StatusStart  SyncStatusEventType = "start"
	StatusUpdate SyncStatusEventType = "update"
	StatusStop   SyncStatusEventType = "stop"
	StatusReset  SyncStatusEventType = "reset"
)

// Mark is one selected fragment of a page. XPath identifies it on the page.
type Mark struct {
	ID       string   `json:"id,omitempty"`
	EntityID string   `json:"entityId,omitempty"`
	Title    string   `json:"title,omitempty"`
	URL      string   `json:"url,omitempty"`
	Type     MarkType `json:"type"`
	Name     string   `json:"name,omitempty"`
	Active   bool     `json:"active,omitempty"`
	TextType TextType `json:"textType,omitempty"`
	Data     string   `json:"data"`
	XPath    string   `json:"xPath"`
	Scope    Scope    `json:"scope"`
	Domain   Domain   `json:"domain,omitempty"`
}

type SyncMarkEvent struct {
	Type SyncMarkEventType `json:"type"`
	Mark *Mark             `json:"mark,omitempty"`
}

type SyncStatusEvent struct {
	Type                SyncStatusEventType `json:"type"`
	Scope               Scope               `json:"scope"`
	EnableMultiSelect   bool                `json:"enableMultiSelect"`
	ShowContentSelector bool                `json:"showContentSelector"`
}

func oneOf[T ~string](v T, allowed ...T) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks enum fields and the presence of an XPath.
func (m Mark) Validate() error {
	if strings.TrimSpace(m.XPath) == "" {
		return invalid("xPath is required")
	}
	if !oneOf(m.Type, TypeResource, TypeNote, TypeCollection, TypeExtensionWeblink,
		TypeNoteSelection, TypeResourceSelection, TypeExtensionWeblinkSelection) {
		return invalid("unknown type %q", m.Type)
	}
	if !oneOf(m.Scope, ScopeBlock, ScopeInline) {
		return invalid("unknown scope %q", m.Scope)
	}
	if m.TextType != "" && !oneOf(m.TextType, TextTypeText, TextTypeTable, TextTypeLink,
		TextTypeImage, TextTypeVideo, TextTypeAudio) {
		return invalid("unknown textType %q", m.TextType)
	}
	if m.Domain != "" && !oneOf(m.Domain, DomainResource, DomainNote, DomainExtensionWeblink,
		DomainNoteCursorSelection, DomainNoteBeforeCursorSelection, DomainNoteAfterCursorSelection) {
		return invalid("unknown domain %q", m.Domain)
	}
	return nil
}

func (e SyncMarkEvent) Validate() error {
	switch e.Type {
	case EventAdd:
		if e.Mark == nil {
			return invalid("add event requires a mark")
		}
		return e.Mark.Validate()
	case EventRemove:
		if e.Mark == nil || strings.TrimSpace(e.Mark.XPath) == "" {
			return invalid("remove event requires a mark xPath")
		}
		return nil
	case EventReset:
		return nil
	default:
		return invalid("unknown event type %q", e.Type)
	}
}

func (e SyncStatusEvent) Validate() error {
	if !oneOf(e.Type, StatusStart, StatusUpdate, StatusStop, StatusReset) {
		return invalid("unknown status type %q", e.Type)
	}
	if e.Scope != "" && !oneOf(e.Scope, ScopeBlock, ScopeInline) {
		return invalid("unknown scope %q", e.Scope)
	}
	return nil
}

// Set holds the marks of one page keyed by XPath.
type Set struct {
	marks map[string]Mark
}

func NewSet(marks ...Mark) *Set {
	s := &Set{marks: make(map[string]Mark, len(marks))}
	for _, m := range marks {
		s.marks[m.XPath] = m
	}
	return s
}

// Apply validates e and mutates the set. An invalid event leaves it unchanged.
func (s *Set) Apply(e SyncMarkEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	switch e.Type {
	case EventAdd:
		s.marks[e.Mark.XPath] = *e.Mark
	case EventRemove:
		delete(s.marks, e.Mark.XPath)
	case EventReset:
		s.marks = make(map[string]Mark)
	}
	return nil
}

func (s *Set) Len() int { return len(s.marks) }

func (s *Set) Get(xPath string) (Mark, bool) {
	m, ok := s.marks[xPath]
	return m, ok
}

// Marks returns the set ordered by XPath.
func (s *Set) Marks() []Mark {
	out := make([]Mark, 0, len(s.marks))
	for _, m := range s.marks {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].XPath < out[j].XPath })
	return out
}
