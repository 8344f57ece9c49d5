// Package diff compares the buffer layouts of two meshes.
package diff

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/TFMV/meshbuf/internal/layout"
	"golang.org/x/sync/errgroup"
)

// Common errors
var (
	// ErrOperationCanceled is returned when a comparison is canceled
	ErrOperationCanceled = errors.New("operation canceled")
)

// DiffEntry is one difference between two layouts.
type DiffEntry struct {
	Type string // "New", "Modified", "Deleted"
	// Path is "index" or "attribute <unique id>".
	Path    string
	Details []string
}

// String returns a string representation of a DiffEntry
func (d DiffEntry) String() string {
	if len(d.Details) == 0 {
		return fmt.Sprintf("%s: %s", d.Type, d.Path)
	}
	return fmt.Sprintf("%s: %s (%s)", d.Type, d.Path, strings.Join(d.Details, ", "))
}

// LoadFunc resolves a source, such as a file or a stored name, to its layout.
type LoadFunc func(ctx context.Context, source string) (*layout.Layout, error)

// CompareLayouts lists the differences from old to new: the index block
// first, then attributes in unique id order. Offsets are not compared since
// they follow from the other fields.
func CompareLayouts(old, new *layout.Layout) []DiffEntry {
	var diffs []DiffEntry

	var details []string
	if old.VertexCount != new.VertexCount {
		details = append(details, fmt.Sprintf("vertices %d -> %d", old.VertexCount, new.VertexCount))
	}
	if old.IndexCount != new.IndexCount {
		details = append(details, fmt.Sprintf("indices %d -> %d", old.IndexCount, new.IndexCount))
	}
	if old.IndexWidth != new.IndexWidth {
		details = append(details, fmt.Sprintf("width %d -> %d", old.IndexWidth, new.IndexWidth))
	}
	if len(details) > 0 {
		diffs = append(diffs, DiffEntry{Type: "Modified", Path: "index", Details: details})
	}

	oldSegs := make(map[int32]layout.Segment, len(old.Attributes))
	for _, s := range old.Attributes {
		oldSegs[s.UniqueID] = s
	}
	newSegs := make(map[int32]layout.Segment, len(new.Attributes))
	for _, s := range new.Attributes {
		newSegs[s.UniqueID] = s
	}

	ids := make([]int32, 0, len(newSegs)+len(oldSegs))
	for id := range newSegs {
		ids = append(ids, id)
	}
	for id := range oldSegs {
		if _, exists := newSegs[id]; !exists {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	for _, id := range ids {
		path := fmt.Sprintf("attribute %d", id)
		prev, hadOld := oldSegs[id]
		next, hasNew := newSegs[id]
		switch {
		case !hadOld:
			diffs = append(diffs, DiffEntry{Type: "New", Path: path, Details: []string{describe(next)}})
		case !hasNew:
			diffs = append(diffs, DiffEntry{Type: "Deleted", Path: path, Details: []string{describe(prev)}})
		default:
			if d := compareSegments(prev, next); len(d) > 0 {
				diffs = append(diffs, DiffEntry{Type: "Modified", Path: path, Details: d})
			}
		}
	}
	return diffs
}

func describe(s layout.Segment) string {
	return fmt.Sprintf("%s %dx%s, %d bytes", s.Kind, s.NumComponents, s.DataType, s.Length)
}

func compareSegments(old, new layout.Segment) []string {
	var d []string
	if old.Kind != new.Kind {
		d = append(d, fmt.Sprintf("kind %s -> %s", old.Kind, new.Kind))
	}
	if old.NumComponents != new.NumComponents {
		d = append(d, fmt.Sprintf("components %d -> %d", old.NumComponents, new.NumComponents))
	}
	if old.DataType != new.DataType {
		d = append(d, fmt.Sprintf("type %s -> %s", old.DataType, new.DataType))
	}
	if old.Degraded != new.Degraded {
		d = append(d, fmt.Sprintf("degraded %t -> %t", old.Degraded, new.Degraded))
	}
	if old.Length != new.Length {
		d = append(d, fmt.Sprintf("length %d -> %d", old.Length, new.Length))
	}
	return d
}

// Compare loads both sources concurrently and compares their layouts.
func Compare(ctx context.Context, oldSource, newSource string, load LoadFunc) ([]DiffEntry, error) {
	// Check for context cancellation
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrOperationCanceled, ctx.Err())
	default:
	}

	var oldLayout, newLayout *layout.Layout
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := load(gctx, oldSource)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", oldSource, err)
		}
		oldLayout = l
		return nil
	})
	g.Go(func() error {
		l, err := load(gctx, newSource)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", newSource, err)
		}
		newLayout = l
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return CompareLayouts(oldLayout, newLayout), nil
}
