// Package metadata indexes the layouts of scanned meshes in a BuntDB
// database so they can be queried by buffer size, digest or attribute.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/TFMV/meshbuf/internal/hash"
	"github.com/TFMV/meshbuf/internal/layout"
	"github.com/tidwall/buntdb"
)

// InMemory opens an index that is never written to disk.
const InMemory = ":memory:"

const keyPrefix = "asset:"

// ErrNotFound is returned for unknown asset names.
var ErrNotFound = errors.New("asset not found")

// AssetRecord is the indexed summary of one decoded mesh.
type AssetRecord struct {
	Name           string  `json:"name"`
	Source         string  `json:"source,omitempty"`
	Digest         string  `json:"digest"`
	CompressedSize int64   `json:"compressedSize"`
	BufferSize     uint64  `json:"bufferSize"`
	VertexCount    uint32  `json:"vertexCount"`
	IndexCount     uint64  `json:"indexCount"`
	IndexWidth     int     `json:"indexWidth"`
	AttributeIDs   []int32 `json:"attributeIds"`
	Degraded       bool    `json:"degraded,omitempty"`
	// DuplicateOf names an earlier asset with the same digest.
	DuplicateOf string `json:"duplicateOf,omitempty"`
	ScannedAt   int64  `json:"scannedAt"`
}

// NewRecord summarizes l for the asset name.
func NewRecord(name, source string, digest hash.Digest, compressedSize int64, l *layout.Layout) AssetRecord {
	rec := AssetRecord{
		Name:           name,
		Source:         source,
		Digest:         digest.String(),
		CompressedSize: compressedSize,
		BufferSize:     l.Size(),
		VertexCount:    l.VertexCount,
		IndexCount:     l.IndexCount,
		IndexWidth:     l.IndexWidth,
		AttributeIDs:   make([]int32, len(l.Attributes)),
		ScannedAt:      time.Now().Unix(),
	}
	for i, s := range l.Attributes {
		rec.AttributeIDs[i] = s.UniqueID
		rec.Degraded = rec.Degraded || s.Degraded
	}
	return rec
}

// HasAttribute reports whether the record lists unique id id.
func (r AssetRecord) HasAttribute(id int32) bool {
	return slices.Contains(r.AttributeIDs, id)
}

// Index is a BuntDB-backed asset index. It is safe for concurrent use.
type Index struct {
	db   *buntdb.DB
	path string
}

// Open opens or creates the index at path. Use InMemory for a transient
// index.
func Open(path string) (*Index, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata index: %w", err)
	}
	if err := createIndexes(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return &Index{db: db, path: path}, nil
}

func createIndexes(db *buntdb.DB) error {
	if err := db.CreateIndex("size", keyPrefix+"*", buntdb.IndexJSON("bufferSize")); err != nil {
		return err
	}
	if err := db.CreateIndex("digest", keyPrefix+"*", buntdb.IndexJSON("digest")); err != nil {
		return err
	}
	return db.CreateIndex("vertices", keyPrefix+"*", buntdb.IndexJSON("vertexCount"))
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

// Put inserts or replaces rec.
func (x *Index) Put(rec AssetRecord) error {
	if rec.Name == "" {
		return errors.New("asset record has no name")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal asset record: %w", err)
	}
	err = x.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(keyPrefix+rec.Name, string(data), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to add asset %s: %w", rec.Name, err)
	}
	return nil
}

// Get returns the record of name.
func (x *Index) Get(name string) (AssetRecord, error) {
	var rec AssetRecord
	err := x.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(keyPrefix + name)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), &rec)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return rec, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to get asset %s: %w", name, err)
	}
	return rec, nil
}

// Delete removes name.
func (x *Index) Delete(name string) error {
	err := x.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(keyPrefix + name)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}

// Len returns the number of indexed assets.
func (x *Index) Len() (int, error) {
	var n int
	err := x.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(keyPrefix+"*", func(_, _ string) bool {
			n++
			return true
		})
	})
	return n, err
}

// Query filters records. Zero fields do not filter.
type Query struct {
	MinSize uint64
	// MaxSize of 0 means unbounded.
	MaxSize uint64
	// AttributeID selects records with this unique id when non-nil.
	AttributeID *int32
	// Pattern is a path.Match pattern over asset names.
	Pattern string
	Digest  string
	// DegradedOnly selects records with at least one degraded segment.
	DegradedOnly bool
}

func (q Query) match(rec AssetRecord) (bool, error) {
	if rec.BufferSize < q.MinSize || (q.MaxSize > 0 && rec.BufferSize > q.MaxSize) {
		return false, nil
	}
	if q.AttributeID != nil && !rec.HasAttribute(*q.AttributeID) {
		return false, nil
	}
	if q.Digest != "" && rec.Digest != q.Digest {
		return false, nil
	}
	if q.DegradedOnly && !rec.Degraded {
		return false, nil
	}
	if q.Pattern != "" {
		return path.Match(q.Pattern, rec.Name)
	}
	return true, nil
}

// Find returns matching records in ascending buffer size order. Queries by
// digest use the digest index; all others walk the size index from MinSize.
func (x *Index) Find(q Query) ([]AssetRecord, error) {
	var (
		out     []AssetRecord
		iterErr error
	)
	visit := func(key, value string) bool {
		var rec AssetRecord
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			iterErr = fmt.Errorf("corrupt record %s: %w", key, err)
			return false
		}
		if q.Digest == "" && q.MaxSize > 0 && rec.BufferSize > q.MaxSize {
			return false
		}
		ok, err := q.match(rec)
		if err != nil {
			iterErr = err
			return false
		}
		if ok {
			out = append(out, rec)
		}
		return true
	}

	err := x.db.View(func(tx *buntdb.Tx) error {
		if q.Digest != "" {
			return tx.AscendEqual("digest", jsonPivot("digest", q.Digest), visit)
		}
		return tx.AscendGreaterOrEqual("size", jsonPivot("bufferSize", q.MinSize), visit)
	})
	if err == nil {
		err = iterErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	if q.Digest != "" {
		slices.SortStableFunc(out, func(a, b AssetRecord) int {
			switch {
			case a.BufferSize < b.BufferSize:
				return -1
			case a.BufferSize > b.BufferSize:
				return 1
			}
			return 0
		})
	}
	return out, nil
}

// FindByDigest returns the records whose container digest is d.
func (x *Index) FindByDigest(d hash.Digest) ([]AssetRecord, error) {
	return x.Find(Query{Digest: d.String()})
}

// Largest returns up to n records with the biggest buffers, largest first.
func (x *Index) Largest(n int) ([]AssetRecord, error) {
	var (
		out     []AssetRecord
		iterErr error
	)
	err := x.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend("size", func(key, value string) bool {
			if len(out) >= n {
				return false
			}
			var rec AssetRecord
			if err := json.Unmarshal([]byte(value), &rec); err != nil {
				iterErr = fmt.Errorf("corrupt record %s: %w", key, err)
				return false
			}
			out = append(out, rec)
			return true
		})
	})
	if err == nil {
		err = iterErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	return out, nil
}

// Duplicates groups records by digest, keeping only digests shared by more
// than one asset.
func (x *Index) Duplicates() (map[string][]AssetRecord, error) {
	groups := make(map[string][]AssetRecord)
	var iterErr error
	err := x.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("digest", func(key, value string) bool {
			var rec AssetRecord
			if err := json.Unmarshal([]byte(value), &rec); err != nil {
				iterErr = fmt.Errorf("corrupt record %s: %w", key, err)
				return false
			}
			groups[rec.Digest] = append(groups[rec.Digest], rec)
			return true
		})
	})
	if err == nil {
		err = iterErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	for d, recs := range groups {
		if len(recs) < 2 {
			delete(groups, d)
		}
	}
	return groups, nil
}

// Shrink compacts the append-only database file.
func (x *Index) Shrink() error {
	if x.path == InMemory {
		return nil
	}
	return x.db.Shrink()
}

func jsonPivot(field string, v any) string {
	b, _ := json.Marshal(map[string]any{field: v})
	return string(b)
}
