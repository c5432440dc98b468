package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidPath = errors.New("invalid document path")
	ErrEmptyBatch  = errors.New("empty batch")
)

type serverTimestamp struct{}

// ServerTimestamp is a field value placeholder resolved to the commit time of the
// batch that writes it.
var ServerTimestamp any = serverTimestamp{}

type Document struct {
	Path       string
	ID         string
	Data       map[string]any
	UpdateTime time.Time
}

func (d Document) DataTo(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

type Filter struct {
	Field string
	// Value nil matches documents where the field is absent or null.
	Value any
}

type Query struct {
	Where   []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

func (q Query) Eq(field string, value any) Query {
	q.Where = append(append([]Filter(nil), q.Where...), Filter{Field: field, Value: value})
	return q
}

type Snapshot struct {
	Collection string
	Docs       []Document
	At         time.Time
}

type Store interface {
	Get(ctx context.Context, path string) (*Document, error)
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	Batch() Batch
	// Subscribe streams full query snapshots of a collection until ctx is done.
	// A slow reader only ever sees the latest snapshot.
	Subscribe(ctx context.Context, collection string, q Query) (<-chan Snapshot, error)
	Close() error
}

// Batch collects writes that commit all-or-nothing.
type Batch interface {
	Set(path string, data map[string]any, merge bool)
	Update(path string, fields map[string]any)
	Delete(path string)
	// Increment adds delta to a numeric field, creating the document when missing.
	Increment(path string, field string, delta decimal.Decimal)
	Commit(ctx context.Context) error
}

type OpKind int

const (
	OpSet OpKind = iota
	OpMerge
	OpUpdate
	OpDelete
	OpIncrement
)

type Op struct {
	Kind  OpKind
	Path  string
	Data  map[string]any
	Field string
	Delta decimal.Decimal
}

// Ops records batch writes. Backends embed it and implement Commit.
type Ops struct {
	List []Op
}

func (o *Ops) Set(path string, data map[string]any, merge bool) {
	kind := OpSet
	if merge {
		kind = OpMerge
	}
	o.List = append(o.List, Op{Kind: kind, Path: path, Data: data})
}

func (o *Ops) Update(path string, fields map[string]any) {
	o.List = append(o.List, Op{Kind: OpUpdate, Path: path, Data: fields})
}

func (o *Ops) Delete(path string) {
	o.List = append(o.List, Op{Kind: OpDelete, Path: path})
}

func (o *Ops) Increment(path string, field string, delta decimal.Decimal) {
	o.List = append(o.List, Op{Kind: OpIncrement, Path: path, Field: field, Delta: delta})
}

// Validate checks every path and field before any write is applied.
func (o *Ops) Validate() error {
	if len(o.List) == 0 {
		return ErrEmptyBatch
	}
	for _, op := range o.List {
		if _, _, err := Split(op.Path); err != nil {
			return err
		}
		if op.Kind == OpIncrement && strings.TrimSpace(op.Field) == "" {
			return fmt.Errorf("%w: increment on %s has no field", ErrInvalidPath, op.Path)
		}
	}
	return nil
}

// Encode turns a JSON-taggable value into a document field map.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Normalize resolves ServerTimestamp placeholders to at and converts data to
// its JSON form, so every backend stores and compares the same shapes.
func Normalize(data map[string]any, at time.Time) (map[string]any, error) {
	resolved := resolveTimestamps(data, at.UTC())
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

func resolveTimestamps(value any, at time.Time) any {
	switch v := value.(type) {
	case serverTimestamp:
		return at
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = resolveTimestamps(item, at)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveTimestamps(item, at)
		}
		return out
	default:
		return v
	}
}

// Decode parses a stored JSON object keeping numbers as json.Number.
func Decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	out := map[string]any{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddNumber returns current + delta as a JSON number. Missing or non-numeric
// values count as zero.
func AddNumber(current any, delta decimal.Decimal) json.Number {
	base := decimal.Zero
	switch v := current.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			base = d
		}
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			base = d
		}
	case float64:
		base = decimal.NewFromFloat(v)
	case int:
		base = decimal.NewFromInt(int64(v))
	case int64:
		base = decimal.NewFromInt(v)
	}
	return json.Number(base.Add(delta).String())
}

func Join(parts ...string) string {
	return strings.Join(parts, "/")
}

// Split returns the collection path and document id of a document path. Valid
// document paths have an even number of non-empty segments.
func Split(path string) (collection string, id string, err error) {
	segments := strings.Split(path, "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	last := len(segments) - 1
	return strings.Join(segments[:last], "/"), segments[last], nil
}

// Matches reports whether data satisfies every filter of q.
func Matches(data map[string]any, q Query) bool {
	for _, f := range q.Where {
		current, ok := data[f.Field]
		if f.Value == nil {
			if ok && current != nil {
				return false
			}
			continue
		}
		if !ok || !sameJSON(current, f.Value) {
			return false
		}
	}
	return true
}

func sameJSON(a, b any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	if bytes.Equal(left, right) {
		return true
	}
	l, lerr := decimal.NewFromString(strings.Trim(string(left), `"`))
	r, rerr := decimal.NewFromString(strings.Trim(string(right), `"`))
	return lerr == nil && rerr == nil && l.Equal(r)
}

// Arrange orders docs by q.OrderBy and applies q.Limit. Documents without the
// ordering field sort first.
func Arrange(docs []Document, q Query) []Document {
	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			c := compareValues(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	} else {
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		at, aerr := time.Parse(time.RFC3339Nano, as)
		bt, berr := time.Parse(time.RFC3339Nano, bs)
		if aerr == nil && berr == nil {
			return at.Compare(bt)
		}
	}
	ad, aerr := decimal.NewFromString(fmt.Sprint(a))
	bd, berr := decimal.NewFromString(fmt.Sprint(b))
	if aerr == nil && berr == nil {
		return ad.Cmp(bd)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Latest replaces any unread snapshot in ch with snap without blocking.
// ch must have capacity 1.
func Latest(ch chan Snapshot, snap Snapshot) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
