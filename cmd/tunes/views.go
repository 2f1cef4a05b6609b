package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/library"
)

type attributeView struct {
	Key     string `json:"key"`
	State   string `json:"state"`
	Version string `json:"version,omitempty"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

type entityView struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Token       string          `json:"token,omitempty"`
	Indexed     bool            `json:"indexed"`
	Online      bool            `json:"online"`
	ContentType string          `json:"content_type,omitempty"`
	CacheMask   string          `json:"cache_mask"`
	Attributes  []attributeView `json:"attributes"`
}

type recordView struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Token       string `json:"token,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	CacheMask   string `json:"cache_mask"`
	UpdatedAt   string `json:"updated_at"`
}

func buildEntityView(b *library.Branch, snap attributes.Snapshot) entityView {
	view := entityView{
		ID:        b.ID(),
		Kind:      string(b.Kind()),
		Indexed:   b.Indexed(),
		Online:    b.Primary() != nil,
		CacheMask: b.CacheMask().String(),
	}
	if token := b.Token(); !token.IsZero() {
		view.Token = token.Key()
	}
	if b.Kind() == cachedb.KindPlaylist {
		view.ContentType = string(b.ContentType())
	}
	for _, k := range b.Schema().Keys().Sorted() {
		entry := snap.Entry(k)
		attr := attributeView{
			Key:     string(k),
			State:   entry.State.Phase.String(),
			Version: string(entry.State.Version),
			Value:   entry.Value,
		}
		if entry.State.Err != nil {
			attr.Error = entry.State.Err.Error()
		}
		view.Attributes = append(view.Attributes, attr)
	}
	return view
}

func buildRecordView(rec *cachedb.Record, snap attributes.Snapshot) recordView {
	view := recordView{
		ID:        rec.ID,
		Kind:      string(rec.Kind),
		Title:     titleOf(rec, snap),
		CacheMask: rec.CacheMask.String(),
		UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
	}
	if !rec.Token.IsZero() {
		view.Token = rec.Token.Kind + ":" + rec.Token.ID
	}
	if rec.Kind == cachedb.KindPlaylist {
		view.ContentType = rec.ContentType
	}
	return view
}

func titleOf(rec *cachedb.Record, snap attributes.Snapshot) string {
	var title string
	if rec.Kind == cachedb.KindPlaylist {
		title, _ = library.PlaylistTitle.Get(snap)
	} else {
		title, _ = library.TrackTitle.Get(snap)
	}
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}

func buildRecordRows(views []recordView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.ID, v.Kind, v.Title, v.Token, v.CacheMask})
	}
	return rows
}

func buildAttributeRows(attrs []attributeView) [][]string {
	rows := make([][]string, 0, len(attrs))
	for _, a := range attrs {
		state := a.State
		if a.Error != "" {
			state = "error: " + a.Error
		}
		rows = append(rows, []string{a.Key, formatValue(a.Value), state, a.Version})
	}
	return rows
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []library.Ref:
		return fmt.Sprintf("%d items", len(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
