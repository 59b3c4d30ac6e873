// Package canvasfile loads a JSON Canvas document into a canvas.MemoryStore
// and writes it back whenever the store asks to be saved. Conversation data
// lives next to the JSON Canvas fields of each node; keys this package does
// not know are kept as they were.
package canvasfile

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/fs"
	"github.com/codefionn/canvaschat/internal/logger"
)

// NodeTypeText is the JSON Canvas type of nodes created by the orchestrator.
const NodeTypeText = "text"

type rawObject = map[string]json.RawMessage

var (
	nodeKeys = keySet("id", "type", "text", "x", "y", "width", "height", "color")
	edgeKeys = keySet(jsonKeys(reflect.TypeOf(canvas.Edge{}))...)
	dataKeys = keySet(jsonKeys(reflect.TypeOf(canvas.NodeData{}))...)
)

// Document is a canvas file bound to the store it was loaded into.
type Document struct {
	fsys  fs.FileSystem
	path  string
	store *canvas.MemoryStore

	mu         sync.Mutex
	extras     rawObject
	nodeTypes  map[string]string
	nodeExtras map[string]rawObject
	edgeExtras map[string]rawObject
}

// New creates an empty document saved to path.
func New(fsys fs.FileSystem, path string) *Document {
	d := &Document{
		fsys:       fsys,
		path:       path,
		store:      canvas.NewMemoryStore(),
		extras:     rawObject{},
		nodeTypes:  make(map[string]string),
		nodeExtras: make(map[string]rawObject),
		edgeExtras: make(map[string]rawObject),
	}
	d.store.SetSaveHandler(d.write)
	return d
}

// Load reads path into a fresh store. Saves requested on the store are
// written back to path.
func Load(ctx context.Context, fsys fs.FileSystem, path string) (*Document, error) {
	data, err := fsys.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read canvas %s: %w", path, err)
	}
	d := New(fsys, path)
	if err := d.decode(data); err != nil {
		return nil, fmt.Errorf("parse canvas %s: %w", path, err)
	}
	logger.Global().Debug("loaded canvas %s: %d nodes, %d edges", path, len(d.store.Nodes()), len(d.store.Edges()))
	return d, nil
}

// Store returns the graph the document is loaded into.
func (d *Document) Store() *canvas.MemoryStore { return d.store }

// Path returns the vault-relative path of the canvas file.
func (d *Document) Path() string { return d.path }

// Save writes the current graph.
func (d *Document) Save(ctx context.Context) error {
	data, err := d.Encode(d.store.Snapshot())
	if err != nil {
		return err
	}
	return d.fsys.WriteFile(ctx, d.path, data)
}

func (d *Document) write(snap canvas.Snapshot) error {
	data, err := d.Encode(snap)
	if err != nil {
		return err
	}
	return d.fsys.WriteFile(context.Background(), d.path, data)
}

func (d *Document) decode(data []byte) error {
	var top rawObject
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}

	var nodes, edges []rawObject
	if raw, ok := top["nodes"]; ok {
		if err := json.Unmarshal(raw, &nodes); err != nil {
			return fmt.Errorf("nodes: %w", err)
		}
	}
	if raw, ok := top["edges"]; ok {
		if err := json.Unmarshal(raw, &edges); err != nil {
			return fmt.Errorf("edges: %w", err)
		}
	}
	delete(top, "nodes")
	delete(top, "edges")

	d.mu.Lock()
	d.extras = top
	d.mu.Unlock()

	for i, raw := range nodes {
		spec, nodeType, err := decodeNode(raw)
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if _, err := d.store.CreateNode(spec); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		d.mu.Lock()
		d.nodeTypes[spec.ID] = nodeType
		d.nodeExtras[spec.ID] = extraKeys(raw, nodeKeys, dataKeys)
		d.mu.Unlock()
	}

	for i, raw := range edges {
		var edge canvas.Edge
		if err := remarshal(raw, &edge); err != nil {
			return fmt.Errorf("edge %d: %w", i, err)
		}
		if edge.ID == "" {
			edge.ID = edge.FromNode + "->" + edge.ToNode
		}
		d.store.LoadEdge(edge)
		d.mu.Lock()
		d.edgeExtras[edge.ID] = extraKeys(raw, edgeKeys)
		d.mu.Unlock()
	}
	return nil
}

func decodeNode(raw rawObject) (canvas.NodeSpec, string, error) {
	var base struct {
		ID     string  `json:"id"`
		Type   string  `json:"type"`
		Text   string  `json:"text"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
		Color  string  `json:"color"`
	}
	if err := remarshal(raw, &base); err != nil {
		return canvas.NodeSpec{}, "", err
	}
	if base.ID == "" {
		return canvas.NodeSpec{}, "", fmt.Errorf("missing id")
	}

	var data canvas.NodeData
	if err := remarshal(raw, &data); err != nil {
		return canvas.NodeSpec{}, "", fmt.Errorf("conversation data of %s: %w", base.ID, err)
	}

	return canvas.NodeSpec{
		ID:     base.ID,
		Text:   base.Text,
		X:      base.X,
		Y:      base.Y,
		Width:  base.Width,
		Height: base.Height,
		Color:  base.Color,
		Data:   data,
	}, base.Type, nil
}

// Encode renders snap as a JSON Canvas document.
func (d *Document) Encode(snap canvas.Snapshot) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := make([]rawObject, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		obj, err := d.encodeNode(n)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		nodes = append(nodes, obj)
	}

	edges := make([]rawObject, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		obj := copyObject(d.edgeExtras[e.ID])
		if err := mergeInto(obj, e); err != nil {
			return nil, fmt.Errorf("encode edge %s: %w", e.ID, err)
		}
		edges = append(edges, obj)
	}

	top := copyObject(d.extras)
	var err error
	if top["nodes"], err = json.Marshal(nodes); err != nil {
		return nil, err
	}
	if top["edges"], err = json.Marshal(edges); err != nil {
		return nil, err
	}
	return json.MarshalIndent(top, "", "\t")
}

func (d *Document) encodeNode(n *canvas.Node) (rawObject, error) {
	obj := copyObject(d.nodeExtras[n.ID])

	nodeType := d.nodeTypes[n.ID]
	if nodeType == "" {
		nodeType = NodeTypeText
	}
	fields := map[string]interface{}{
		"id":     n.ID,
		"type":   nodeType,
		"x":      math.Round(n.X),
		"y":      math.Round(n.Y),
		"width":  math.Round(n.Width),
		"height": math.Round(n.Height),
	}
	if nodeType == NodeTypeText || n.Text != "" {
		fields["text"] = n.Text
	}
	if n.Color != "" {
		fields["color"] = n.Color
	}
	if err := mergeInto(obj, fields); err != nil {
		return nil, err
	}
	if err := mergeInto(obj, n.Data); err != nil {
		return nil, err
	}
	return obj, nil
}

// mergeInto marshals v as an object and copies its keys into obj.
func mergeInto(obj rawObject, v interface{}) error {
	var fields rawObject
	if err := remarshal(v, &fields); err != nil {
		return err
	}
	for k, raw := range fields {
		obj[k] = raw
	}
	return nil
}

func remarshal(in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func extraKeys(raw rawObject, known ...map[string]bool) rawObject {
	out := rawObject{}
outer:
	for k, v := range raw {
		for _, set := range known {
			if set[k] {
				continue outer
			}
		}
		out[k] = v
	}
	return out
}

func copyObject(obj rawObject) rawObject {
	out := make(rawObject, len(obj)+8)
	for k, v := range obj {
		out[k] = v
	}
	return out
}

func keySet(keys ...string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// jsonKeys lists the JSON object keys of a struct type.
func jsonKeys(t reflect.Type) []string {
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" || !f.IsExported() {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name == "" {
			name = f.Name
		}
		keys = append(keys, name)
	}
	return keys
}
