// Package cache keeps built trees and per-container metrics so repeated
// resolutions against the same snapshot skip parsing and layout analysis.
//
// A Cache is constructed explicitly and passed to the resolver. Entries are
// bounded by an LRU; each key is built at most once even under concurrent
// first access. Callers own eviction through Remove and Purge.
package cache

import (
	"fmt"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
	"github.com/devicelab-dev/uiresolve/pkg/layout"
	"github.com/devicelab-dev/uiresolve/pkg/logger"
	"github.com/devicelab-dev/uiresolve/pkg/signature"
)

// DefaultSize is the tree capacity used when New is given a size <= 0.
const DefaultSize = 64

// metricsPerTree scales the metrics capacity from the tree capacity.
const metricsPerTree = 16

// Metrics are the facts about one container that every candidate inside it
// shares.
type Metrics struct {
	Root        hierarchy.NodeID      `json:"root"`
	Path        string                `json:"path"`
	Layout      layout.Type           `json:"layout"`
	Geometry    float64               `json:"geometry"`
	Signatures  []signature.Signature `json:"signatures,omitempty"`
	Children    int                   `json:"children"`
	Descendants int                   `json:"descendants"`
}

// Compute derives metrics for root without caching.
func Compute(tree *hierarchy.Tree, root hierarchy.NodeID) Metrics {
	lt := layout.Classify(tree, root)
	return Metrics{
		Root:        root,
		Path:        tree.Node(root).Path,
		Layout:      lt,
		Geometry:    layout.GeometryScore(lt),
		Signatures:  signature.LearnOrLoad(tree, root, lt, nil),
		Children:    len(tree.Children(root)),
		Descendants: tree.SubtreeSize(root),
	}
}

// BuildFunc parses a snapshot.
type BuildFunc func(snapshot string, opts ...hierarchy.Option) (*hierarchy.Tree, error)

// Option configures a Cache.
type Option func(*Cache)

// WithBuilder replaces hierarchy.Build.
func WithBuilder(b BuildFunc) Option {
	return func(c *Cache) { c.build = b }
}

// Stats are cumulative counters.
type Stats struct {
	TreeHits      int64 `json:"treeHits"`
	TreeBuilds    int64 `json:"treeBuilds"`
	MetricsHits   int64 `json:"metricsHits"`
	MetricsBuilds int64 `json:"metricsBuilds"`
	Trees         int   `json:"trees"`
	Metrics       int   `json:"metrics"`
}

// Cache maps snapshot ids to trees and (snapshot id, path) to Metrics.
type Cache struct {
	trees   *lru.Cache[string, *hierarchy.Tree]
	metrics *lru.Cache[string, Metrics]
	group   singleflight.Group
	build   BuildFunc

	treeHits, treeBuilds       atomic.Int64
	metricsHits, metricsBuilds atomic.Int64
}

// New creates a cache holding up to size trees.
func New(size int, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	trees, err := lru.New[string, *hierarchy.Tree](size)
	if err != nil {
		return nil, fmt.Errorf("create tree cache: %w", err)
	}
	metrics, err := lru.New[string, Metrics](size * metricsPerTree)
	if err != nil {
		return nil, fmt.Errorf("create metrics cache: %w", err)
	}
	c := &Cache{trees: trees, metrics: metrics, build: hierarchy.Build}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func treeKey(snapshotID string, screen core.Size) string {
	if screen.IsZero() {
		return snapshotID
	}
	return fmt.Sprintf("%s@%dx%d", snapshotID, screen.Width, screen.Height)
}

func metricsKey(treeID, path string) string {
	return treeID + "\x00" + path
}

// Tree returns the tree for snapshot, building it on first use. A non-zero
// screen overrides the size derived from the snapshot and is part of the key.
func (c *Cache) Tree(snapshot string, screen core.Size) (*hierarchy.Tree, error) {
	key := treeKey(hierarchy.SnapshotID(snapshot), screen)
	if t, ok := c.trees.Get(key); ok {
		c.treeHits.Add(1)
		return t, nil
	}

	v, err, _ := c.group.Do("tree:"+key, func() (interface{}, error) {
		if t, ok := c.trees.Get(key); ok {
			c.treeHits.Add(1)
			return t, nil
		}
		var opts []hierarchy.Option
		if !screen.IsZero() {
			opts = append(opts, hierarchy.WithScreen(screen))
		}
		t, err := c.build(snapshot, opts...)
		if err != nil {
			return nil, err
		}
		c.treeBuilds.Add(1)
		c.trees.Add(key, t)
		logger.Debug("cache: built tree %s (%d nodes)", key, t.Len())
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*hierarchy.Tree), nil
}

// Metrics returns the metrics of root in tree, computing them on first use.
func (c *Cache) Metrics(tree *hierarchy.Tree, root hierarchy.NodeID) Metrics {
	key := metricsKey(tree.ID(), tree.Node(root).Path)
	if m, ok := c.metrics.Get(key); ok {
		c.metricsHits.Add(1)
		return m
	}

	v, _, _ := c.group.Do("metrics:"+key, func() (interface{}, error) {
		if m, ok := c.metrics.Get(key); ok {
			c.metricsHits.Add(1)
			return m, nil
		}
		m := Compute(tree, root)
		c.metricsBuilds.Add(1)
		c.metrics.Add(key, m)
		logger.Debug("cache: metrics for %s: layout %s, %d signatures", m.Path, m.Layout, len(m.Signatures))
		return m, nil
	})
	return v.(Metrics)
}

// Remove evicts a snapshot's tree and every metrics entry derived from it.
func (c *Cache) Remove(snapshotID string) {
	for _, k := range c.trees.Keys() {
		if k == snapshotID || strings.HasPrefix(k, snapshotID+"@") {
			c.trees.Remove(k)
		}
	}
	for _, k := range c.metrics.Keys() {
		if strings.HasPrefix(k, snapshotID+"\x00") {
			c.metrics.Remove(k)
		}
	}
}

// Purge evicts everything.
func (c *Cache) Purge() {
	c.trees.Purge()
	c.metrics.Purge()
}

// Len returns the number of cached trees.
func (c *Cache) Len() int {
	return c.trees.Len()
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		TreeHits:      c.treeHits.Load(),
		TreeBuilds:    c.treeBuilds.Load(),
		MetricsHits:   c.metricsHits.Load(),
		MetricsBuilds: c.metricsBuilds.Load(),
		Trees:         c.trees.Len(),
		Metrics:       c.metrics.Len(),
	}
}
