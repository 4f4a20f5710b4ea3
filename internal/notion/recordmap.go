// Package notion models the record graph returned by the workspace's record
// API and implements a small client for the two endpoints needed to read a
// page and the rows of the collections it embeds.
package notion

import (
	"encoding/json"
	"sort"
)

// Block types and parent tables that the rest of the module cares about.
const (
	TypePage               = "page"
	TypeCollectionView     = "collection_view"
	TypeCollectionViewPage = "collection_view_page"

	ParentCollection = "collection"
)

// RecordMap is the record graph of a single fetch.
type RecordMap struct {
	Block           map[string]Record                           `json:"block,omitempty"`
	Collection      map[string]Record                           `json:"collection,omitempty"`
	CollectionView  map[string]Record                           `json:"collection_view,omitempty"`
	CollectionQuery map[string]map[string]CollectionQueryResult `json:"collection_query,omitempty"`
}

// Record is the role/value envelope around every entry of the graph.
type Record struct {
	Role  string      `json:"role,omitempty"`
	Value *BlockValue `json:"value,omitempty"`
}

// UnmarshalJSON accepts both {"value":{...}} and the doubly wrapped
// {"value":{"value":{...},"role":...}} shapes. A value that does not decode
// leaves Value nil rather than failing the whole graph.
func (r *Record) UnmarshalJSON(b []byte) error {
	var env struct {
		Role  string          `json:"role"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return nil
	}
	r.Role = env.Role
	raw := env.Value
	var inner struct {
		Role  string          `json:"role"`
		Value json.RawMessage `json:"value"`
	}
	if isObject(raw) && json.Unmarshal(raw, &inner) == nil && isObject(inner.Value) {
		raw = inner.Value
		if r.Role == "" {
			r.Role = inner.Role
		}
	}
	if !isObject(raw) {
		return nil
	}
	var v BlockValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	r.Value = &v
	return nil
}

// BlockValue is the typed part of a block, collection or collection view.
type BlockValue struct {
	ID           string                    `json:"id"`
	Type         string                    `json:"type,omitempty"`
	ParentID     string                    `json:"parent_id,omitempty"`
	ParentTable  string                    `json:"parent_table,omitempty"`
	SpaceID      string                    `json:"space_id,omitempty"`
	Alive        *bool                     `json:"alive,omitempty"`
	CollectionID string                    `json:"collection_id,omitempty"`
	ViewIDs      []string                  `json:"view_ids,omitempty"`
	Content      []string                  `json:"content,omitempty"`
	Properties   Properties                `json:"properties,omitempty"`
	Schema       map[string]SchemaProperty `json:"schema,omitempty"`
	Format       json.RawMessage           `json:"format,omitempty"`
}

// SchemaProperty names one column of a collection.
type SchemaProperty struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CollectionQueryResult holds the reducer output for one collection view.
type CollectionQueryResult struct {
	CollectionGroupResults *GroupResults `json:"collection_group_results,omitempty"`
}

// GroupResults is the ordered list of rows in a view.
type GroupResults struct {
	Type     string   `json:"type,omitempty"`
	BlockIDs []string `json:"blockIds"`
	HasMore  bool     `json:"hasMore,omitempty"`
}

// BlockValue looks a block up by ID, tolerating dashed and compact forms.
func (m *RecordMap) BlockValue(id string) (*BlockValue, bool) {
	if m == nil {
		return nil, false
	}
	return lookup(m.Block, id)
}

// CollectionValue looks a collection up by ID.
func (m *RecordMap) CollectionValue(id string) (*BlockValue, bool) {
	if m == nil {
		return nil, false
	}
	return lookup(m.Collection, id)
}

func lookup(records map[string]Record, id string) (*BlockValue, bool) {
	for _, k := range idForms(id) {
		if rec, ok := records[k]; ok && rec.Value != nil {
			return rec.Value, true
		}
	}
	return nil, false
}

// SetCollectionQuery stores the result of a view query.
func (m *RecordMap) SetCollectionQuery(collectionID, viewID string, res CollectionQueryResult) {
	if m.CollectionQuery == nil {
		m.CollectionQuery = map[string]map[string]CollectionQueryResult{}
	}
	if m.CollectionQuery[collectionID] == nil {
		m.CollectionQuery[collectionID] = map[string]CollectionQueryResult{}
	}
	m.CollectionQuery[collectionID][viewID] = res
}

// Merge copies every record of other into m. Entries of other win.
func (m *RecordMap) Merge(other *RecordMap) {
	if other == nil {
		return
	}
	m.Block = mergeRecords(m.Block, other.Block)
	m.Collection = mergeRecords(m.Collection, other.Collection)
	m.CollectionView = mergeRecords(m.CollectionView, other.CollectionView)
	for collID, views := range other.CollectionQuery {
		for viewID, res := range views {
			m.SetCollectionQuery(collID, viewID, res)
		}
	}
}

func mergeRecords(dst, src map[string]Record) map[string]Record {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]Record, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// CollectionViewBlocks returns the blocks that embed a collection, in ID
// order so callers iterate deterministically.
func (m *RecordMap) CollectionViewBlocks() []*BlockValue {
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.Block))
	for id, rec := range m.Block {
		if rec.Value == nil {
			continue
		}
		if rec.Value.Type == TypeCollectionView || rec.Value.Type == TypeCollectionViewPage {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]*BlockValue, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.Block[id].Value)
	}
	return out
}

func isObject(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
