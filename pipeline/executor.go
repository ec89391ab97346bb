// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/qsim/gpucore"
)

// Execution errors.
var (
	// ErrDeviceFailure wraps any device error raised while evaluating nodes.
	// The whole run fails; nothing is retried.
	ErrDeviceFailure = errors.New("device failure")

	// ErrNotHostValue is returned when a run target lives on the device.
	ErrNotHostValue = errors.New("pipeline: target is not a host value")
)

// Executor evaluates nodes of a graph on a device.
//
// Each Run evaluates the requested targets and their ancestors once, in
// ascending ID order. Device buffers are released as soon as their last
// consumer in the run has been evaluated; nothing is cached between runs.
type Executor struct {
	graph  *Graph
	device gpucore.Device
	logger *slog.Logger
}

// NewExecutor creates an executor. A nil logger discards output.
func NewExecutor(g *Graph, dev gpucore.Device, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{graph: g, device: dev, logger: logger}
}

// Device returns the device the executor runs on.
func (e *Executor) Device() gpucore.Device { return e.device }

// RunStats describes one run.
type RunStats struct {
	Nodes     int
	Kernels   int
	Uploads   int
	Readbacks int
}

// Run evaluates targets and returns their host values in order. Targets must
// be readback or host nodes.
func (e *Executor) Run(ctx context.Context, targets []NodeID) ([]any, error) {
	out, _, err := e.RunWithStats(ctx, targets)
	return out, err
}

// RunWithStats is Run that also reports what was evaluated.
func (e *Executor) RunWithStats(ctx context.Context, targets []NodeID) ([]any, RunStats, error) {
	var stats RunStats
	for _, id := range targets {
		n := e.graph.Node(id)
		if n == nil {
			return nil, stats, fmt.Errorf("pipeline: unknown node %d", id)
		}
		if n.Kind.OnDevice() {
			return nil, stats, fmt.Errorf("%w: node %d (%s)", ErrNotHostValue, id, n.Label)
		}
	}

	order := e.schedule(targets)
	stats.Nodes = len(order)

	// remaining counts consumers that have not been evaluated yet.
	remaining := make(map[NodeID]int, len(order))
	for _, n := range order {
		for _, in := range n.Inputs {
			remaining[in]++
		}
	}

	buffers := make(map[NodeID]gpucore.Buffer)
	hostValues := make(map[NodeID]any)
	releaseAll := func() {
		for _, buf := range buffers {
			e.device.Release(buf)
		}
		clear(buffers)
	}

	e.logger.Debug("pipeline run",
		slog.Int("targets", len(targets)),
		slog.Int("nodes", len(order)),
		slog.String("device", e.device.Name()))

	for _, n := range order {
		if err := ctx.Err(); err != nil {
			releaseAll()
			return nil, stats, err
		}

		switch n.Kind {
		case KindSource:
			buf, err := e.device.Upload(n.Width, n.Height, n.cells)
			if err != nil {
				releaseAll()
				return nil, stats, e.deviceError(n, err)
			}
			buffers[n.ID] = buf
			stats.Uploads++

		case KindKernel:
			call := n.call
			call.Inputs = make([]gpucore.Buffer, len(n.Inputs))
			for i, in := range n.Inputs {
				call.Inputs[i] = buffers[in]
			}
			buf, err := e.device.Dispatch(call)
			if err != nil {
				releaseAll()
				return nil, stats, e.deviceError(n, err)
			}
			buffers[n.ID] = buf
			stats.Kernels++

		case KindReadback:
			cells, err := e.device.Read(buffers[n.Inputs[0]])
			if err != nil {
				releaseAll()
				return nil, stats, e.deviceError(n, err)
			}
			hostValues[n.ID] = cells
			stats.Readbacks++

		case KindHost:
			args := make([]any, len(n.Inputs))
			for i, in := range n.Inputs {
				args[i] = hostValues[in]
			}
			v, err := n.host(args)
			if err != nil {
				releaseAll()
				return nil, stats, fmt.Errorf("pipeline: %s: %w", n.Label, err)
			}
			hostValues[n.ID] = v
		}

		for _, in := range n.Inputs {
			remaining[in]--
			if remaining[in] > 0 {
				continue
			}
			if buf, ok := buffers[in]; ok {
				e.device.Release(buf)
				delete(buffers, in)
			}
		}
	}

	// Device nodes are only scheduled as ancestors of host targets, so every
	// buffer has been released by its last consumer.
	releaseAll()

	out := make([]any, len(targets))
	for i, id := range targets {
		out[i] = hostValues[id]
	}

	e.logger.Debug("pipeline done",
		slog.Int("kernels", stats.Kernels),
		slog.Int("uploads", stats.Uploads),
		slog.Int("readbacks", stats.Readbacks))
	return out, stats, nil
}

// schedule returns targets and their ancestors sorted by ID.
func (e *Executor) schedule(targets []NodeID) []*Node {
	seen := make(map[NodeID]bool)
	stack := slices.Clone(targets)
	var order []*Node
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		n := e.graph.Node(id)
		order = append(order, n)
		stack = append(stack, n.Inputs...)
	}
	slices.SortFunc(order, func(a, b *Node) int { return int(a.ID - b.ID) })
	return order
}

func (e *Executor) deviceError(n *Node, err error) error {
	e.logger.Warn("pipeline node failed",
		slog.Int("node", int(n.ID)),
		slog.String("label", n.Label),
		slog.String("kind", n.Kind.String()),
		slog.String("err", err.Error()))
	return fmt.Errorf("%w: node %d (%s %s): %w", ErrDeviceFailure, n.ID, n.Kind, n.Label, err)
}
