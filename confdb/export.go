package confdb

import (
	"context"
	"regexp"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/online-daq/goconf/backend"
	cerrors "github.com/online-daq/goconf/errors"
	"github.com/online-daq/goconf/export"
	"github.com/online-daq/goconf/object"
)

// ExportSchema builds the schema property tree for every loaded class.
func (c *Configuration) ExportSchema(classFilter *regexp.Regexp) export.Node {
	return export.Schema(c.registry, export.Filters{Class: classFilter})
}

// ExportData builds the data property tree for every class matching
// filters, reading every attribute and relationship named in that class's
// inherited schema. Typed-read failures are replaced with export's error
// marker rather than aborting the export.
func (c *Configuration) ExportData(ctx context.Context, filters export.Filters, emptySentinel string) (export.Node, error) {
	c.implMu.Lock()
	if err := c.requireLoaded(); err != nil {
		c.implMu.Unlock()
		return nil, err
	}
	classes := c.registry.Names()
	c.implMu.Unlock()

	byClass := export.ObjectsByClass{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, class := range classes {
		if !filters.MatchClass(class) {
			continue
		}
		class := class
		g.Go(func() error {
			handles, err := c.GetBulk(gctx, class, "", 0, nil)
			if err != nil {
				return cerrors.Wrap(err, "export class "+class)
			}
			var kept []*object.Handle
			for _, h := range handles {
				if !filters.MatchUID(h.UID()) || !filters.MatchSource(h.ContainedIn()) {
					continue
				}
				kept = append(kept, h)
			}
			if len(kept) > 0 {
				mu.Lock()
				byClass[class] = kept
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return export.Data(c.registry, byClass, c.readFieldForExport, emptySentinel), nil
}

func (c *Configuration) readFieldForExport(h *object.Handle, field string) (any, error) {
	return h.Get(field)
}

// ReferencedBy returns every object that references h through relation
// (optionally restricted to composite/aggregation relationships), by
// asking the backend to run the reverse traversal. The query string is
// backend-opaque; this is the conventional encoding reference backends in
// this module understand.
func (c *Configuration) ReferencedBy(ctx context.Context, h *object.Handle, relation string, compositeOnly bool, rlevel int, rclasses []string) ([]*object.Handle, error) {
	query := "referenced-by:" + relation
	if compositeOnly {
		query += ":composite-only"
	}
	return c.GetFrom(ctx, h, backend.Query(query), rlevel, rclasses)
}
