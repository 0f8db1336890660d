package indexer

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/schema"
)

type memNode struct {
	labels map[string]bool
	props  map[string]any
}

type memEdge struct {
	from, to, typ string
}

// memGraph applies mutations the way the rendered Cypher does, keyed on _id
type memGraph struct {
	mu         sync.Mutex
	nodes      map[string]*memNode
	edges      map[memEdge]bool
	configured *graph.Settings
	configErr  error
	applyErr   error
	applied    []*graph.Mutation
	closeCalls int
	deleteAlls int
}

func newMemGraph() *memGraph {
	return &memGraph{
		nodes: make(map[string]*memNode),
		edges: make(map[memEdge]bool),
	}
}

func (g *memGraph) Configure(_ context.Context, s graph.Settings) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.configErr != nil {
		return g.configErr
	}
	g.configured = &s
	return nil
}

func (g *memGraph) Close(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeCalls++
	return nil
}

func (g *memGraph) VerifyConnectivity(_ context.Context) error {
	return nil
}

func (g *memGraph) DeleteAll(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteAlls++
	for key, n := range g.nodes {
		if n.labels[graph.DocumentLabel] || n.labels[graph.InternalLabel] {
			g.detachDelete(key)
		}
	}
	return nil
}

func (g *memGraph) Apply(_ context.Context, m *graph.Mutation) (*models.GraphNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.applyErr != nil {
		return nil, g.applyErr
	}
	g.applied = append(g.applied, m)

	switch m.Kind {
	case graph.MutationDelete:
		if _, ok := g.nodes[m.RootKey]; !ok {
			return nil, nil
		}
		for _, key := range g.internalSubtree(m.RootKey) {
			g.detachDelete(key)
		}
		g.detachDelete(m.RootKey)
		return nil, nil
	case graph.MutationUpdate:
		g.merge(m.RootKey, graph.DocumentLabel)
		for _, key := range g.internalSubtree(m.RootKey) {
			g.detachDelete(key)
		}
		for e := range g.edges {
			if e.from == m.RootKey && g.nodes[e.to].labels[graph.DocumentLabel] {
				delete(g.edges, e)
			}
		}
	}

	root := g.merge(m.RootKey, graph.DocumentLabel)
	root.props = copyProps(m.Root.Properties)
	if m.Root.Label != "" {
		root.labels[m.Root.Label] = true
	}
	for _, child := range m.Children {
		n := g.merge(child.Key, graph.InternalLabel)
		n.props = copyProps(child.Properties)
		if child.Label != "" {
			n.labels[child.Label] = true
		}
	}
	for _, e := range m.Containment {
		g.edges[memEdge{e.From, e.To, e.Type}] = true
	}
	for _, e := range m.External {
		g.merge(e.To, graph.DocumentLabel)
		g.edges[memEdge{e.From, e.To, e.Type}] = true
	}

	return &models.GraphNode{ID: m.RootKey, Labels: g.labels(m.RootKey), Properties: copyProps(root.props)}, nil
}

func (g *memGraph) merge(key, label string) *memNode {
	n, ok := g.nodes[key]
	if !ok {
		n = &memNode{labels: map[string]bool{}, props: map[string]any{graph.IDProperty: key}}
		g.nodes[key] = n
	}
	n.labels[label] = true
	return n
}

// internalSubtree is every _Internal node reachable from root through
// _Internal nodes only
func (g *memGraph) internalSubtree(root string) []string {
	seen := map[string]bool{}
	queue := []string{root}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for e := range g.edges {
			if e.from != current || seen[e.to] {
				continue
			}
			n := g.nodes[e.to]
			if n == nil || !n.labels[graph.InternalLabel] {
				continue
			}
			seen[e.to] = true
			out = append(out, e.to)
			queue = append(queue, e.to)
		}
	}
	return out
}

func (g *memGraph) detachDelete(key string) {
	delete(g.nodes, key)
	for e := range g.edges {
		if e.from == key || e.to == key {
			delete(g.edges, e)
		}
	}
}

func (g *memGraph) labels(key string) []string {
	n := g.nodes[key]
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.labels))
	for l := range n.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (g *memGraph) node(key string) *memNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[key]
}

func (g *memGraph) hasEdge(from, typ, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges[memEdge{from, to, typ}]
}

func (g *memGraph) nodeKeys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// snapshot renders the graph as sorted text so two states compare equal
func (g *memGraph) snapshot() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var lines []string
	for key, n := range g.nodes {
		props, _ := json.Marshal(n.props)
		lines = append(lines, "node "+key+" "+strings.Join(g.labels(key), ",")+" "+string(props))
	}
	for e := range g.edges {
		lines = append(lines, "edge "+e.from+" -"+e.typ+"-> "+e.to)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

type fakeSearcher struct {
	cypher string
	params map[string]any
}

func (s *fakeSearcher) ExecuteQuery(_ context.Context, cypher string, params map[string]any) (*graph.QueryResult, error) {
	s.cypher = cypher
	s.params = params
	return &graph.QueryResult{Rows: []any{map[string]any{"n": 1}}}, nil
}

// fakeRepository is a host repository supporting *:*, type: and
// internal.pointsAt: queries
type fakeRepository struct {
	docs     []*models.Document
	payloads map[string][]byte
	pointsAt map[string][]string
}

func newFakeRepository(docs ...*models.Document) *fakeRepository {
	return &fakeRepository{
		docs:     docs,
		payloads: map[string][]byte{},
		pointsAt: map[string][]string{},
	}
}

func (r *fakeRepository) Get(_ context.Context, id string) (*models.Document, error) {
	for _, d := range r.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeRepository) Search(_ context.Context, query string) (models.DocumentCursor, error) {
	var out []*models.Document
	for _, d := range r.docs {
		if query == MatchAllQuery || query == TypeQuery(d.Type) || query == Term(FieldID, d.ID) {
			out = append(out, d)
		}
	}
	return &sliceCursor{docs: out, index: -1}, nil
}

func (r *fakeRepository) SearchIDs(_ context.Context, query string) (models.IDCursor, error) {
	var ids []string
	for target, sources := range r.pointsAt {
		if query == PointsAtQuery(target) {
			ids = append(ids, sources...)
		}
	}
	return &sliceCursor{ids: ids, index: -1}, nil
}

func (r *fakeRepository) GetPayload(_ context.Context, id, name string) ([]byte, error) {
	return r.payloads[id+"/"+name], nil
}

type sliceCursor struct {
	docs   []*models.Document
	ids    []string
	index  int
	closed bool
}

func (c *sliceCursor) Next() bool {
	c.index++
	return c.index < len(c.docs)+len(c.ids)
}

func (c *sliceCursor) Document() (*models.Document, error) { return c.docs[c.index], nil }
func (c *sliceCursor) ID() (string, error)                 { return c.ids[c.index], nil }
func (c *sliceCursor) Err() error                          { return nil }
func (c *sliceCursor) Close() error {
	c.closed = true
	return nil
}

// staticSchemas hands out a fixed pointer map per document type
type staticSchemas map[string]schema.PointerMap

func (s staticSchemas) PointerMap(_ context.Context, doc *models.Document) (schema.PointerMap, error) {
	return s[doc.Type], nil
}

type heldLocker struct{}

func (heldLocker) WithLock(_ context.Context, _ string, _ time.Duration, _ func(ctx context.Context) error) error {
	return redis.ErrLockNotAcquired
}

type recordingLocker struct {
	keys []string
}

func (l *recordingLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, key)
	return fn(ctx)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type testEnv struct {
	indexer *Indexer
	graph   *memGraph
	repo    *fakeRepository
}

func newTestEnv(cfg *models.GraphConfig, schemas staticSchemas, docs ...*models.Document) *testEnv {
	g := newMemGraph()
	repo := newFakeRepository(docs...)
	ix := New(Config{
		Store:      g,
		Searcher:   &fakeSearcher{},
		Repository: repo,
		Schemas:    schemas,
		Logger:     testLogger(),
	})
	if cfg != nil {
		if _, err := ix.ApplyConfig(context.Background(), *cfg); err != nil {
			panic(err)
		}
	}
	return &testEnv{indexer: ix, graph: g, repo: repo}
}

func doc(id, docType, content string) *models.Document {
	return &models.Document{ID: id, Type: docType, Content: json.RawMessage(content)}
}

func sub(raw string) json.RawMessage {
	return json.RawMessage(raw)
}

func defaultConfig() *models.GraphConfig {
	cfg := models.DefaultGraphConfig()
	return &cfg
}

func sortedLabels(n *memNode) []string {
	out := make([]string, 0, len(n.labels))
	for l := range n.labels {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}
