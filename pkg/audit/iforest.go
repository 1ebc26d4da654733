// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"math"
	"math/rand"
	"sort"
)

// One-dimensional isolation forest. Points that isolate in few random
// splits score as outliers. The forest is seeded, so the same inputs
// always flag the same rows.

const (
	forestTrees      = 100
	forestSampleSize = 256
	forestSeed       = 42
)

type isoNode struct {
	split       float64
	left, right *isoNode
	size        int // leaf only
}

type isoForest struct {
	trees      []*isoNode
	sampleSize int
}

// fitForest builds a seeded forest over the values.
func fitForest(values []float64) *isoForest {
	rng := rand.New(rand.NewSource(forestSeed))
	sample := forestSampleSize
	if sample > len(values) {
		sample = len(values)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sample))))

	f := &isoForest{sampleSize: sample}
	for t := 0; t < forestTrees; t++ {
		sub := make([]float64, sample)
		for i := range sub {
			sub[i] = values[rng.Intn(len(values))]
		}
		f.trees = append(f.trees, buildIsoTree(sub, 0, maxDepth, rng))
	}
	return f
}

func buildIsoTree(values []float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if len(values) <= 1 || depth >= maxDepth {
		return &isoNode{size: len(values)}
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		return &isoNode{size: len(values)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right []float64
	for _, v := range values {
		if v < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}
	return &isoNode{
		split: split,
		left:  buildIsoTree(left, depth+1, maxDepth, rng),
		right: buildIsoTree(right, depth+1, maxDepth, rng),
	}
}

// pathLength walks one tree; unresolved leaves get the average-depth
// adjustment c(size) from the original algorithm.
func pathLength(n *isoNode, v float64, depth int) float64 {
	if n.left == nil {
		return float64(depth) + avgPath(n.size)
	}
	if v < n.split {
		return pathLength(n.left, v, depth+1)
	}
	return pathLength(n.right, v, depth+1)
}

// avgPath is c(n): the average unsuccessful-search depth of a BST.
func avgPath(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649 // Euler-Mascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}

// score returns the anomaly score in (0, 1]; higher is more anomalous.
func (f *isoForest) score(v float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += pathLength(t, v, 0)
	}
	mean := sum / float64(len(f.trees))
	return math.Pow(2, -mean/avgPath(f.sampleSize))
}

// flagOutliers fits a forest over the values and returns the indices
// of the top contamination share by anomaly score, at least one. The
// result is ordered by original position.
func flagOutliers(values []float64, contamination float64) []int {
	f := fitForest(values)
	scores := make([]float64, len(values))
	for i, v := range values {
		scores[i] = f.score(v)
	}

	k := int(math.Ceil(contamination * float64(len(values))))
	if k < 1 {
		k = 1
	}
	if k > len(values) {
		k = len(values)
	}

	// Pick the k highest scores; stable on ties so earlier rows win.
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	out := make([]int, k)
	copy(out, idx[:k])
	sort.Ints(out)
	return out
}
