// Package graph implements the in-memory typed property graph: nodes with
// tagged property values, contextual overlays, and the Store that owns node
// identity and the per-type instance indices.
package graph

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/trellis/internal/schema"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("node not found")

// Reserved types of synthetic nodes created by aggregation and analysis.
const (
	TypeAggregate    = "trellis:Aggregate"
	TypeGroup        = "trellis:Group"
	TypePathAnalysis = "trellis:PathAnalysis"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store owns the canonical nodes of one graph.
//
// Identity: two GetNode calls for the same (type, uri) return the same
// *Node. Nodes are never removed individually.
//
// Concurrency: map bookkeeping is internally synchronized. Node properties
// are not; mutating computations run inside Update and read-only queries
// that may overlap them run inside View.
type Store struct {
	writer sync.RWMutex

	mu   sync.RWMutex
	dict *schema.Dictionary
	log  *slog.Logger

	nodes   []*Node          // internal ID → node
	byKey   map[string]*Node // unique key → typed node
	byURI   map[string]*Node // local URI → first node registered with it
	pending map[string]*Node // local URI → untyped forward reference

	// Per-type instance lists in insertion order, plus a roaring bitmap per
	// type so a node is never indexed twice.
	instances map[string][]*Node
	typeIndex map[string]*roaring.Bitmap

	adhoc map[string]*schema.Type
}

func NewStore(dict *schema.Dictionary, opts ...Option) *Store {
	if dict == nil {
		dict = schema.NewDictionary()
	}
	s := &Store{
		dict:      dict,
		log:       slog.Default(),
		byKey:     make(map[string]*Node),
		byURI:     make(map[string]*Node),
		pending:   make(map[string]*Node),
		instances: make(map[string][]*Node),
		typeIndex: make(map[string]*roaring.Bitmap),
		adhoc:     make(map[string]*schema.Type),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dictionary returns the store's type dictionary.
func (s *Store) Dictionary() *schema.Dictionary {
	return s.dict
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.log
}

// Update runs fn holding the single-writer lock.
func (s *Store) Update(fn func() error) error {
	s.writer.Lock()
	defer s.writer.Unlock()
	return fn()
}

// View runs fn holding a shared lock that excludes Update.
func (s *Store) View(fn func() error) error {
	s.writer.RLock()
	defer s.writer.RUnlock()
	return fn()
}

// GetNode returns the node for (typeURI, uri), creating it on first
// reference. An empty typeURI resolves any node already registered under
// uri, else creates an untyped forward reference. A forward reference is
// typed and indexed the first time it is requested with a type.
func (s *Store) GetNode(typeURI, uri string) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	if typeURI == "" {
		if n, ok := s.byURI[uri]; ok {
			return n
		}
		n := s.allocate(uri, nil)
		s.pending[uri] = n
		return n
	}

	key := UniqueKey(typeURI, uri)
	if n, ok := s.byKey[key]; ok {
		return n
	}
	typ := s.typeFor(typeURI)
	if n, ok := s.pending[uri]; ok {
		delete(s.pending, uri)
		n.typ = typ
		s.byKey[key] = n
		s.index(n)
		s.log.Debug("typed forward reference", "uri", uri, "type", typeURI)
		return n
	}
	n := s.allocate(uri, typ)
	s.byKey[key] = n
	s.index(n)
	return n
}

// Find returns the node for (typeURI, uri) without creating it.
func (s *Store) Find(typeURI, uri string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if typeURI == "" {
		n, ok := s.byURI[uri]
		return n, ok
	}
	n, ok := s.byKey[UniqueKey(typeURI, uri)]
	return n, ok
}

// Lookup resolves a node by local URI regardless of type.
func (s *Store) Lookup(uri string) (*Node, error) {
	if n, ok := s.Find("", uri); ok {
		return n, nil
	}
	return nil, ErrNotFound
}

// NodeByID returns the canonical node with the given internal ID.
func (s *Store) NodeByID(id uint32) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= len(s.nodes) {
		return nil, false
	}
	return s.nodes[id], true
}

// InstancesOf returns the nodes indexed under exactly typeURI.
func (s *Store) InstancesOf(typeURI string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Node(nil), s.instances[typeURI]...)
}

// AllNodesOf returns the instances of typeURI followed by the instances of
// every transitive sub type.
func (s *Store) AllNodesOf(typeURI string) []*Node {
	t := s.dict.Type(typeURI)
	if t.IsUnknown() {
		return s.InstancesOf(typeURI)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Node
	for _, sub := range t.Descendants() {
		out = append(out, s.instances[sub.URI]...)
	}
	return out
}

// Pending returns the forward references that were never typed, by URI.
func (s *Store) Pending() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, 0, len(s.pending))
	for _, n := range s.pending {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].uri < out[j].uri })
	return out
}

// Len returns the number of canonical nodes, including forward references.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Counts returns the number of indexed instances per type URI.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.instances))
	for t, ns := range s.instances {
		out[t] = len(ns)
	}
	return out
}

// IsIndexed reports whether n is in the instance index of typeURI.
func (s *Store) IsIndexed(typeURI string, n *Node) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bm, ok := s.typeIndex[typeURI]
	return ok && bm.Contains(n.ID())
}

// NewSynthetic registers a node of a reserved type under a fresh UUID.
func (s *Store) NewSynthetic(typeURI string) *Node {
	return s.GetNode(typeURI, uuid.NewString())
}

// Associate adds the edge src -assoc-> tgt and its inverse tgt -> src. The
// inverse property is the association type's declared inverse, else
// fallbackInverse, else the source's type URI.
func (s *Store) Associate(src *Node, assoc string, tgt *Node, fallbackInverse string) {
	if src == nil || tgt == nil {
		return
	}
	src.AddRef(assoc, tgt)

	inverse := s.dict.Type(assoc).InverseURI
	if inverse == "" {
		inverse = fallbackInverse
	}
	if inverse == "" {
		inverse = src.TypeURI()
	}
	if inverse == "" {
		s.log.Debug("no inverse for association", "assoc", assoc, "source", src.URI())
		return
	}
	tgt.AddRef(inverse, src)
}

// allocate assigns the next internal ID. Must be called with s.mu held.
func (s *Store) allocate(uri string, typ *schema.Type) *Node {
	n := newNode(uint32(len(s.nodes)), uri, typ)
	s.nodes = append(s.nodes, n)
	if _, ok := s.byURI[uri]; !ok {
		s.byURI[uri] = n
	}
	return n
}

// index appends n to its type's instance list once. Must be called with
// s.mu held.
func (s *Store) index(n *Node) {
	typeURI := n.TypeURI()
	bm, ok := s.typeIndex[typeURI]
	if !ok {
		bm = roaring.New()
		s.typeIndex[typeURI] = bm
	}
	if !bm.CheckedAdd(n.id) {
		return
	}
	s.instances[typeURI] = append(s.instances[typeURI], n)
}

// typeFor resolves a type URI, minting an ad-hoc entity type for URIs the
// dictionary does not know (reserved synthetic types, undeclared tables).
// Must be called with s.mu held.
func (s *Store) typeFor(typeURI string) *schema.Type {
	if t, ok := s.dict.Lookup(typeURI); ok {
		return t
	}
	t, ok := s.adhoc[typeURI]
	if !ok {
		t = &schema.Type{URI: typeURI, Name: typeURI, Kind: schema.KindEntity}
		s.adhoc[typeURI] = t
	}
	return t
}
