package canvas

import (
	"sync"
	"testing"

	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain(t *testing.T, store *MemoryStore, roles ...Role) []*Node {
	t.Helper()
	nodes := make([]*Node, 0, len(roles))
	for i, role := range roles {
		n, err := store.CreateNode(NodeSpec{
			ID:     string(rune('a' + i)),
			Y:      float64(i * 200),
			Width:  100,
			Height: 100,
			Data:   NodeData{Role: role},
		})
		require.NoError(t, err)
		if i > 0 {
			require.NoError(t, store.AddEdge(Edge{FromNode: nodes[i-1].ID, ToNode: n.ID}))
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func ids(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestAncestorsChain(t *testing.T) {
	store := NewMemoryStore()
	nodes := chain(t, store, llm.RoleSystem, llm.RoleUser, llm.RoleAssistant)

	got := Ancestors(nodes[2], StoreParent(store))
	assert.Equal(t, []string{"a", "b"}, ids(got))
	assert.Empty(t, Ancestors(nodes[0], StoreParent(store)))
}

func TestAncestorsTerminatesOnCycle(t *testing.T) {
	store := NewMemoryStore()
	nodes := chain(t, store, llm.RoleUser, llm.RoleAssistant, llm.RoleUser)
	require.NoError(t, store.AddEdge(Edge{FromNode: "c", ToNode: "a"}))

	got := Ancestors(nodes[2], StoreParent(store))
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestAncestorsSelfLoop(t *testing.T) {
	store := NewMemoryStore()
	nodes := chain(t, store, llm.RoleUser)
	require.NoError(t, store.AddEdge(Edge{FromNode: "a", ToNode: "a"}))

	assert.Empty(t, Ancestors(nodes[0], StoreParent(store)))
}

func TestStoreParentMissingSource(t *testing.T) {
	store := NewMemoryStore()
	nodes := chain(t, store, llm.RoleUser)
	store.LoadEdge(Edge{ID: "dangling", FromNode: "ghost", ToNode: "a"})

	assert.Nil(t, StoreParent(store)(nodes[0]))
}

func TestIncomingEdgeFirstWins(t *testing.T) {
	store := NewMemoryStore()
	chain(t, store, llm.RoleUser, llm.RoleAssistant, llm.RoleUser)
	require.NoError(t, store.AddEdge(Edge{FromNode: "c", ToNode: "b"}))

	edge, ok := store.IncomingEdge("b")
	require.True(t, ok)
	assert.Equal(t, "a", edge.FromNode)
	assert.Equal(t, "a->b", edge.ID)
}

func TestCountRoleOccurrences(t *testing.T) {
	store := NewMemoryStore()
	nodes := chain(t, store,
		llm.RoleUser, llm.RoleAssistant,
		llm.RoleUser, llm.RoleAssistant,
		llm.RoleUser, llm.RoleAssistant,
		llm.RoleUser, llm.RoleAssistant,
	)
	parent := StoreParent(store)

	count, ref := CountRoleOccurrences(nodes[5], parent, llm.RoleUser, 3)
	assert.Equal(t, 3, count)
	require.NotNil(t, ref)
	assert.Equal(t, "a", ref.ID)

	count, ref = CountRoleOccurrences(nodes[7], parent, llm.RoleUser, 3)
	assert.Equal(t, 4, count)
	require.NotNil(t, ref)
	assert.Equal(t, "c", ref.ID)

	count, ref = CountRoleOccurrences(nodes[3], parent, llm.RoleUser, 3)
	assert.Equal(t, 2, count)
	assert.Nil(t, ref)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	n, err := store.CreateNode(NodeSpec{Text: "hi", Data: NodeData{Message: &llm.Message{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)

	n.Text = "changed"
	n.Data.Message.Content = "changed"

	stored, ok := store.Node(n.ID)
	require.True(t, ok)
	assert.Equal(t, "hi", stored.Text)
	assert.Equal(t, "hi", stored.Data.Message.Content)
}

func TestMemoryStoreMutations(t *testing.T) {
	store := NewMemoryStore()
	var events []EventKind
	var mu sync.Mutex
	unsubscribe := store.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev.Kind)
		mu.Unlock()
	})

	n, err := store.CreateNode(NodeSpec{ID: "x"})
	require.NoError(t, err)
	require.NoError(t, store.SetNodeText(n.ID, "text"))
	require.NoError(t, store.SetNodeColor(n.ID, "5"))
	require.NoError(t, store.ResizeNode(n.ID, Size{Width: 10, Height: 20}))
	require.NoError(t, store.SetKeepLoaded(n.ID, true))
	require.NoError(t, store.SetNodeData(n.ID, func(d *NodeData) { d.FinishReason = "stop" }))

	got, _ := store.Node("x")
	assert.Equal(t, "text", got.Text)
	assert.Equal(t, "5", got.Color)
	assert.Equal(t, 20.0, got.Height)
	assert.True(t, got.KeepLoaded)
	assert.Equal(t, "stop", got.Data.FinishReason)

	_, err = store.CreateNode(NodeSpec{ID: "x"})
	assert.ErrorIs(t, err, ErrDuplicateNode)
	assert.ErrorIs(t, store.SetNodeText("missing", "t"), ErrNodeNotFound)
	assert.ErrorIs(t, store.AddEdge(Edge{FromNode: "x", ToNode: "missing"}), ErrNodeNotFound)

	unsubscribe()
	require.NoError(t, store.SetNodeText(n.ID, "quiet"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{
		EventNodeCreated, EventNodeUpdated, EventNodeUpdated,
		EventNodeUpdated, EventNodeUpdated, EventNodeUpdated,
	}, events)
}

func TestMemoryStoreSaveAndHooks(t *testing.T) {
	store := NewMemoryStore()
	chain(t, store, llm.RoleUser, llm.RoleAssistant)

	var saved Snapshot
	store.SetSaveHandler(func(s Snapshot) error {
		saved = s
		return nil
	})
	store.RequestSave()
	assert.Len(t, saved.Nodes, 2)
	assert.Len(t, saved.Edges, 1)

	var rendered, menu []string
	stop := store.OnNodeRendered(func(id string) { rendered = append(rendered, id) })
	store.OnMenuRequested(func(id string) { menu = append(menu, id) })
	store.NotifyRendered("a")
	store.RequestMenu("b")
	stop()
	store.NotifyRendered("b")

	assert.Equal(t, []string{"a"}, rendered)
	assert.Equal(t, []string{"b"}, menu)
}

func TestIntersectingNodes(t *testing.T) {
	store := NewMemoryStore()
	chain(t, store, llm.RoleUser, llm.RoleAssistant, llm.RoleUser)

	got := store.IntersectingNodes(Rect{X: 50, Y: 150, Width: 10, Height: 100})
	assert.Equal(t, []string{"b"}, ids(got))

	// touching edges are not overlap
	assert.Empty(t, store.IntersectingNodes(Rect{X: 100, Y: 0, Width: 10, Height: 10}))
}

func TestEstimateHeight(t *testing.T) {
	short := EstimateHeight("hello", 400)
	long := EstimateHeight(string(make([]byte, 2000)), 400)
	assert.GreaterOrEqual(t, short, 60.0)
	assert.Greater(t, long, short)
	assert.Greater(t, EstimateHeight("a\nb\nc", 400), short)
}
