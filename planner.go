package qsim

import (
	"github.com/gogpu/qsim/gpucore"
	"github.com/gogpu/qsim/internal/bits"
)

// PackRequest asks for a Width x Height buffer to be placed in an atlas.
// Both dimensions are powers of two.
type PackRequest[K comparable] struct {
	Key    K
	Width  int
	Height int
}

// ReadPlan places requests in one atlas buffer.
type ReadPlan[K comparable] struct {
	// Width and Height are the atlas dimensions, both powers of two.
	Width, Height int

	// Offsets maps each request key to the flat cell offset of its data.
	Offsets map[K]int
}

// PlanPacking packs buffers into a single atlas so they can be read back
// together.
//
// Buffer data is linear, so every request is reshaped to the atlas width and
// placed on one shelf in request order: each offset is the total area of the
// requests before it. The atlas has the smallest power-of-two area holding
// them all, split as evenly as possible with the extra factor of two on the
// width, and is widened when a request is wider than that. Equal inputs give
// equal plans. No requests give a 1x1 atlas.
//
// A key is placed once: a repeated key keeps its first offset and the
// repeat takes no space, whatever its size.
func PlanPacking[K comparable](requests []PackRequest[K]) ReadPlan[K] {
	plan := ReadPlan[K]{Offsets: make(map[K]int, len(requests))}

	total, maxWidth := 0, 1
	for _, r := range requests {
		if _, dup := plan.Offsets[r.Key]; dup {
			continue
		}
		plan.Offsets[r.Key] = total
		total += r.Width * r.Height
		maxWidth = max(maxWidth, r.Width)
	}

	w, h := gpucore.ShapeForPower(bits.CeilLg2(max(total, 1)))
	for w < maxWidth {
		w *= 2
		h = max(1, h/2)
	}
	for w*h < total {
		h *= 2
	}
	plan.Width, plan.Height = w, h
	return plan
}
