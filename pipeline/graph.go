// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/gogpu/qsim/cache"
	"github.com/gogpu/qsim/gpucore"
)

// NodeID identifies a node in a Graph. IDs are assigned in creation order,
// starting at 1, so ascending ID order is a topological order.
type NodeID int

// InvalidNode is the zero NodeID.
const InvalidNode NodeID = 0

// Kind classifies nodes by where their value lives.
type Kind uint8

// Node kinds.
const (
	// KindSource uploads host cells into a device buffer.
	KindSource Kind = iota + 1

	// KindKernel dispatches a kernel over its input buffers.
	KindKernel

	// KindReadback copies a device buffer to the host.
	KindReadback

	// KindHost transforms host values.
	KindHost
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindKernel:
		return "kernel"
	case KindReadback:
		return "readback"
	case KindHost:
		return "host"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// OnDevice reports whether values of this kind are device buffers.
func (k Kind) OnDevice() bool {
	return k == KindSource || k == KindKernel
}

// HostFunc computes a host node from the host values of its inputs.
type HostFunc func(inputs []any) (any, error)

// Node is one deferred computation. Nodes are immutable once added.
type Node struct {
	ID     NodeID
	Kind   Kind
	Label  string
	Inputs []NodeID

	// Key is the xxhash of the node's structural description.
	Key uint64

	// Width and Height are the output shape of device nodes.
	Width, Height int

	call  gpucore.KernelCall // KindKernel
	cells []float32          // KindSource
	host  HostFunc           // KindHost
}

// Shape returns a placeholder buffer carrying the node's output shape.
// Kernel constructors accept it in place of a real input buffer.
func (n *Node) Shape() gpucore.Buffer {
	return gpucore.Buffer{Width: n.Width, Height: n.Height, Format: gpucore.TextureFormatRGBA32Float}
}

// Graph is an append-only arena of nodes. Inputs always reference existing
// nodes, so the graph is acyclic by construction.
//
// Kernel and readback nodes with identical structure are interned: adding the
// same kernel over the same inputs twice returns the first node.
//
// Graph is safe for concurrent use.
type Graph struct {
	mu     sync.RWMutex
	nodes  []*Node
	intern *cache.Interner[NodeID]
}

// NewGraph creates an empty graph. With interning disabled every Add creates
// a new node.
func NewGraph(interning bool) *Graph {
	g := &Graph{}
	if interning {
		g.intern = cache.NewInterner[NodeID](0)
	}
	return g
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id NodeID) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id <= 0 || int(id) > len(g.nodes) {
		return nil
	}
	return g.nodes[id-1]
}

// Shape returns the placeholder buffer of a device node.
func (g *Graph) Shape(id NodeID) gpucore.Buffer {
	n := g.mustNode(id)
	if !n.Kind.OnDevice() {
		panic(fmt.Sprintf("pipeline: node %d (%s) has no device shape", id, n.Kind))
	}
	return n.Shape()
}

// InternStats returns statistics of the intern table.
func (g *Graph) InternStats() cache.Stats {
	if g.intern == nil {
		return cache.Stats{}
	}
	return g.intern.Stats()
}

func (g *Graph) mustNode(id NodeID) *Node {
	n := g.Node(id)
	if n == nil {
		panic(fmt.Sprintf("pipeline: unknown node %d", id))
	}
	return n
}

func (g *Graph) append(n *Node) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	n.ID = NodeID(len(g.nodes) + 1)
	g.nodes = append(g.nodes, n)
	return n.ID
}

// add interns n under key when interning is enabled.
func (g *Graph) add(n *Node, key []byte) NodeID {
	if g.intern == nil {
		n.Key = cache.Digest(key)
		return g.append(n)
	}
	id, _ := g.intern.Intern(key, func(digest uint64) NodeID {
		n.Key = digest
		return g.append(n)
	})
	return id
}

// AddSource adds a node uploading cells as a width x height buffer.
// cells must hold width*height*gpucore.Channels values and must not be
// modified afterwards.
func (g *Graph) AddSource(label string, width, height int, cells []float32) NodeID {
	if len(cells) != width*height*gpucore.Channels {
		panic(fmt.Sprintf("pipeline: source %q has %d values for %dx%d cells", label, len(cells), width, height))
	}
	n := &Node{Kind: KindSource, Label: label, Width: width, Height: height, cells: cells}
	d := xxhash.New()
	var b [4]byte
	for _, v := range cells {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		_, _ = d.Write(b[:])
	}
	n.Key = d.Sum64()
	return g.append(n)
}

// AddKernel adds a node dispatching call over inputs. The input buffers of
// call only need to carry shapes (see Shape); they are replaced by the
// evaluated inputs at run time.
func (g *Graph) AddKernel(label string, call gpucore.KernelCall, inputs ...NodeID) NodeID {
	if want := call.Kernel.Inputs(); len(inputs) != want {
		panic(fmt.Sprintf("pipeline: %s takes %d inputs, got %d", call.Kernel, want, len(inputs)))
	}
	for _, in := range inputs {
		if !g.mustNode(in).Kind.OnDevice() {
			panic(fmt.Sprintf("pipeline: kernel input %d is not a device node", in))
		}
	}
	call.Inputs = nil
	n := &Node{
		Kind:   KindKernel,
		Label:  label,
		Inputs: inputs,
		Width:  call.Width,
		Height: call.Height,
		call:   call,
	}
	return g.add(n, kernelKey(call, inputs))
}

// AddReadback adds a node copying a device node to the host as []float32.
func (g *Graph) AddReadback(input NodeID) NodeID {
	in := g.mustNode(input)
	if !in.Kind.OnDevice() {
		panic(fmt.Sprintf("pipeline: readback input %d is not a device node", input))
	}
	n := &Node{Kind: KindReadback, Label: "readback", Inputs: []NodeID{input}}
	key := binary.LittleEndian.AppendUint64([]byte{byte(KindReadback)}, uint64(input)) //nolint:gosec // IDs are positive
	return g.add(n, key)
}

// AddHost adds a node computing fn over host inputs.
func (g *Graph) AddHost(label string, fn HostFunc, inputs ...NodeID) NodeID {
	for _, in := range inputs {
		if g.mustNode(in).Kind.OnDevice() {
			panic(fmt.Sprintf("pipeline: host input %d is a device node", in))
		}
	}
	return g.append(&Node{Kind: KindHost, Label: label, Inputs: inputs, host: fn})
}

// kernelKey encodes everything that determines a kernel node's output.
func kernelKey(call gpucore.KernelCall, inputs []NodeID) []byte {
	key := make([]byte, 0, 1+4*(3+gpucore.MaxParams+gpucore.MaxCoefs)+8*len(inputs))
	key = append(key, byte(KindKernel))
	key = binary.LittleEndian.AppendUint32(key, uint32(call.Kernel))
	key = binary.LittleEndian.AppendUint32(key, uint32(call.Width))  //nolint:gosec // sizes are positive
	key = binary.LittleEndian.AppendUint32(key, uint32(call.Height)) //nolint:gosec // sizes are positive
	for _, p := range call.Params {
		key = binary.LittleEndian.AppendUint32(key, uint32(p)) //nolint:gosec // bit pattern
	}
	for _, c := range call.Coefs {
		key = binary.LittleEndian.AppendUint32(key, math.Float32bits(c))
	}
	for _, in := range inputs {
		key = binary.LittleEndian.AppendUint64(key, uint64(in)) //nolint:gosec // IDs are positive
	}
	return key
}
