// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline holds the deferred computation graph of the engine.
//
// A Graph is an arena of nodes: uploads of host data, kernel dispatches,
// readbacks and host-side transforms. Building nodes never touches the
// device. An Executor later evaluates the ancestors of the requested nodes
// in one pass, releasing every intermediate buffer after its last use.
//
//	g := pipeline.NewGraph(true)
//	src := g.AddSource("input", 2, 1, cells)
//	op := g.AddKernel("hadamard", gpucore.QubitOperation(g.Shape(src), 0, h), src)
//	out, err := pipeline.NewExecutor(g, dev, nil).Run(ctx, []pipeline.NodeID{g.AddReadback(op)})
package pipeline
