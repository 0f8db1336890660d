package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
)

type call struct {
	op              string
	id              string
	schemaMap       schema.PointerMap
	includeExternal bool
}

type fakeSync struct {
	calls     []call
	err       error
	guardErr  error
	schemaErr error
	filtered  bool
}

func (f *fakeSync) node(doc *models.Document) *models.GraphNode {
	if f.filtered {
		return nil
	}
	return &models.GraphNode{ID: doc.ID, Labels: []string{"Document", doc.Type}}
}

func (f *fakeSync) Create(_ context.Context, doc *models.Document, m schema.PointerMap) (*models.GraphNode, error) {
	f.calls = append(f.calls, call{op: "create", id: doc.ID, schemaMap: m, includeExternal: true})
	if f.err != nil {
		return nil, f.err
	}
	return f.node(doc), nil
}

func (f *fakeSync) Update(_ context.Context, doc *models.Document, m schema.PointerMap, includeExternal bool) (*models.GraphNode, error) {
	f.calls = append(f.calls, call{op: "update", id: doc.ID, schemaMap: m, includeExternal: includeExternal})
	if f.err != nil {
		return nil, f.err
	}
	return f.node(doc), nil
}

func (f *fakeSync) Delete(_ context.Context, doc *models.Document) error {
	f.calls = append(f.calls, call{op: "delete", id: doc.ID})
	return f.err
}

func (f *fakeSync) EnsureNoInboundReferences(_ context.Context, doc *models.Document) error {
	f.calls = append(f.calls, call{op: "guard", id: doc.ID})
	return f.guardErr
}

func (f *fakeSync) SchemaMapFor(_ context.Context, doc *models.Document) (schema.PointerMap, error) {
	f.calls = append(f.calls, call{op: "schema", id: doc.ID})
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	return schema.PointerMap{"/computed": json.RawMessage(`{}`)}, nil
}

type fakeNotifier struct {
	synced  []string
	removed []string
	err     error
}

func (n *fakeNotifier) EmitDocumentSynced(_ context.Context, doc *models.Document, _ *models.GraphNode, _ bool) error {
	n.synced = append(n.synced, doc.ID)
	return n.err
}

func (n *fakeNotifier) EmitDocumentRemoved(_ context.Context, doc *models.Document) error {
	n.removed = append(n.removed, doc.ID)
	return n.err
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestHooks_AfterCreateOrUpdate(t *testing.T) {
	ctx := context.Background()
	doc := &models.Document{ID: "d/1", Type: "Foo", Content: json.RawMessage(`{}`)}
	provided := schema.PointerMap{"/a": json.RawMessage(`{}`)}

	t.Run("new documents are created with the provided map", func(t *testing.T) {
		sync, notifier := &fakeSync{}, &fakeNotifier{}
		New(sync, notifier, testLogger()).AfterCreateOrUpdate(ctx, doc, true, provided)

		require.Len(t, sync.calls, 1)
		assert.Equal(t, "create", sync.calls[0].op)
		assert.Equal(t, provided, sync.calls[0].schemaMap)
		assert.Equal(t, []string{"d/1"}, notifier.synced)
	})

	t.Run("existing documents are updated with external references", func(t *testing.T) {
		sync := &fakeSync{}
		New(sync, nil, testLogger()).AfterCreateOrUpdate(ctx, doc, false, provided)

		require.Len(t, sync.calls, 1)
		assert.Equal(t, "update", sync.calls[0].op)
		assert.True(t, sync.calls[0].includeExternal)
	})

	t.Run("missing map is computed", func(t *testing.T) {
		sync := &fakeSync{}
		New(sync, nil, testLogger()).AfterCreateOrUpdate(ctx, doc, false, nil)

		require.Len(t, sync.calls, 2)
		assert.Equal(t, "schema", sync.calls[0].op)
		assert.Contains(t, sync.calls[1].schemaMap, "/computed")
	})

	t.Run("sync failures are swallowed", func(t *testing.T) {
		sync, notifier := &fakeSync{err: errors.New("graph down")}, &fakeNotifier{}
		assert.NotPanics(t, func() {
			New(sync, notifier, testLogger()).AfterCreateOrUpdate(ctx, doc, true, provided)
		})
		assert.Empty(t, notifier.synced)
	})

	t.Run("schema failures skip the sync", func(t *testing.T) {
		sync := &fakeSync{schemaErr: errors.New("bad schema")}
		New(sync, nil, testLogger()).AfterCreateOrUpdate(ctx, doc, true, nil)
		require.Len(t, sync.calls, 1)
		assert.Equal(t, "schema", sync.calls[0].op)
	})

	t.Run("filtered documents are not announced", func(t *testing.T) {
		sync, notifier := &fakeSync{filtered: true}, &fakeNotifier{}
		New(sync, notifier, testLogger()).AfterCreateOrUpdate(ctx, doc, true, provided)
		assert.Empty(t, notifier.synced)
	})

	t.Run("notifier failures are swallowed", func(t *testing.T) {
		sync, notifier := &fakeSync{}, &fakeNotifier{err: errors.New("broker down")}
		New(sync, notifier, testLogger()).AfterCreateOrUpdate(ctx, doc, true, provided)
		assert.Equal(t, []string{"d/1"}, notifier.synced)
	})
}

func TestHooks_Delete(t *testing.T) {
	ctx := context.Background()
	doc := &models.Document{ID: "d/1", Type: "Foo"}

	t.Run("before delete surfaces the guard", func(t *testing.T) {
		guardErr := errors.New("Cannot delete d/1 other objects still point at it.")
		h := New(&fakeSync{guardErr: guardErr}, nil, testLogger())
		assert.Equal(t, guardErr, h.BeforeDelete(ctx, doc))
		assert.NoError(t, New(&fakeSync{}, nil, testLogger()).BeforeDelete(ctx, doc))
	})

	t.Run("after delete removes and announces", func(t *testing.T) {
		sync, notifier := &fakeSync{}, &fakeNotifier{}
		New(sync, notifier, testLogger()).AfterDelete(ctx, doc)
		assert.Equal(t, "delete", sync.calls[0].op)
		assert.Equal(t, []string{"d/1"}, notifier.removed)
	})

	t.Run("after delete failures are swallowed", func(t *testing.T) {
		sync, notifier := &fakeSync{err: errors.New("graph down")}, &fakeNotifier{}
		New(sync, notifier, testLogger()).AfterDelete(ctx, doc)
		assert.Empty(t, notifier.removed)
	})
}

func TestHooks_HandleMessage(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		value    string
		expected []string
	}{
		{
			name:     "create",
			value:    `{"event":"after_create_or_update","is_new":true,"document":{"id":"d/1","type":"Foo","content":{}},"schema_map":{}}`,
			expected: []string{"create"},
		},
		{
			name:     "update computes missing schema map",
			value:    `{"event":"after_create_or_update","document":{"id":"d/1","type":"Foo","content":{}}}`,
			expected: []string{"schema", "update"},
		},
		{
			name:     "delete",
			value:    `{"event":"after_delete","document":{"id":"d/1","type":"Foo"}}`,
			expected: []string{"delete"},
		},
		{
			name:     "unknown event is dropped",
			value:    `{"event":"before_publish","document":{"id":"d/1","type":"Foo"}}`,
			expected: nil,
		},
		{
			name:     "missing document id is dropped",
			value:    `{"event":"after_delete","document":{"type":"Foo"}}`,
			expected: nil,
		},
		{
			name:     "unreadable payload is dropped",
			value:    `not json`,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sync := &fakeSync{}
			h := New(sync, nil, testLogger())

			err := h.HandleMessage(ctx, &kafka.IncomingMessage{Value: []byte(tt.value)})
			require.NoError(t, err)

			var ops []string
			for _, c := range sync.calls {
				ops = append(ops, c.op)
			}
			assert.Equal(t, tt.expected, ops)
		})
	}

	t.Run("canceled context asks for redelivery", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		h := New(&fakeSync{}, nil, testLogger())
		err := h.HandleMessage(ctx, &kafka.IncomingMessage{Value: []byte(`{"event":"after_delete","document":{"id":"d/1","type":"Foo"}}`)})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
