package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// IsolationForest is a lightweight isolation forest. It builds random trees
// up to a height limit and scores points by average path length. All fields
// are exported so the fitted model round-trips through JSON.
type IsolationForest struct {
	Trees      []*iTree `json:"trees"`
	NumTrees   int      `json:"num_trees"`
	SampleSize int      `json:"sample_size"`
	HeightLim  int      `json:"height_limit"`
	Dims       int      `json:"dims"`
	// Threshold is the outlier cut-off on Score, fitted from the training
	// score distribution and the contamination rate.
	Threshold float64 `json:"threshold"`
}

type iTree struct {
	Root *iNode `json:"root"`
}

type iNode struct {
	Leaf     bool    `json:"leaf"`
	Size     int     `json:"size"`
	Dim      int     `json:"dim,omitempty"`
	SplitVal float64 `json:"split_val,omitempty"`
	Left     *iNode  `json:"left,omitempty"`
	Right    *iNode  `json:"right,omitempty"`
}

// NewIsolationForest returns an unfitted forest.
func NewIsolationForest(numTrees, sampleSize int) *IsolationForest {
	if numTrees <= 0 {
		numTrees = 100
	}
	if sampleSize <= 0 {
		sampleSize = 256
	}
	return &IsolationForest{NumTrees: numTrees, SampleSize: sampleSize}
}

// Fit builds the trees from X and fits Threshold so that roughly
// contamination of the training rows score above it. It checks ctx between
// trees and leaves f untouched on error.
func (f *IsolationForest) Fit(ctx context.Context, X [][]float64, contamination float64, rng *rand.Rand) error {
	n := len(X)
	if n == 0 {
		return fmt.Errorf("no training data provided")
	}
	dims := len(X[0])
	for i, row := range X {
		if len(row) != dims {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), dims)
		}
	}
	m := f.SampleSize
	if m > n {
		m = n
	}
	hlim := int(math.Ceil(math.Log2(float64(max(m, 2)))))

	trees := make([]*iTree, f.NumTrees)
	for i := 0; i < f.NumTrees; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		// sample without replacement
		idxs := rng.Perm(n)[:m]
		sample := make([][]float64, m)
		for j, idx := range idxs {
			sample[j] = X[idx]
		}
		trees[i] = &iTree{Root: buildITree(sample, 0, hlim, rng)}
	}

	fitted := IsolationForest{Trees: trees, NumTrees: f.NumTrees, SampleSize: m, HeightLim: hlim, Dims: dims}
	scores := make([]float64, n)
	for i, row := range X {
		scores[i] = fitted.Score(row)
	}
	fitted.Threshold = upperQuantile(scores, contamination)
	*f = fitted
	return nil
}

func buildITree(X [][]float64, h, hlim int, rng *rand.Rand) *iNode {
	if len(X) <= 1 || h >= hlim {
		return &iNode{Leaf: true, Size: len(X)}
	}
	// split only on dimensions that still vary within this node
	type span struct {
		dim      int
		min, max float64
	}
	var spans []span
	for dim := 0; dim < len(X[0]); dim++ {
		lo, hi := X[0][dim], X[0][dim]
		for i := 1; i < len(X); i++ {
			v := X[i][dim]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if lo < hi {
			spans = append(spans, span{dim: dim, min: lo, max: hi})
		}
	}
	if len(spans) == 0 {
		return &iNode{Leaf: true, Size: len(X)}
	}
	sp := spans[rng.Intn(len(spans))]
	dim, minv, maxv := sp.dim, sp.min, sp.max
	split := minv + rng.Float64()*(maxv-minv)
	left := make([][]float64, 0, len(X))
	right := make([][]float64, 0, len(X))
	for _, row := range X {
		if row[dim] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &iNode{Leaf: true, Size: len(X)}
	}
	return &iNode{
		Dim:      dim,
		SplitVal: split,
		Size:     len(X),
		Left:     buildITree(left, h+1, hlim, rng),
		Right:    buildITree(right, h+1, hlim, rng),
	}
}

// cFactor is the average path length of an unsuccessful BST search over n
// points, used to normalise path lengths.
func cFactor(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2.0*(math.Log(float64(n-1))+0.5772156649) - 2.0*float64(n-1)/float64(n)
}

func pathLength(node *iNode, x []float64, h int) float64 {
	if node.Leaf {
		if node.Size <= 1 {
			return float64(h)
		}
		return float64(h) + cFactor(node.Size)
	}
	if x[node.Dim] < node.SplitVal {
		return pathLength(node.Left, x, h+1)
	}
	return pathLength(node.Right, x, h+1)
}

// Fitted reports whether the forest has trees.
func (f *IsolationForest) Fitted() bool { return len(f.Trees) > 0 }

// Score returns the anomaly score in (0,1], higher means more anomalous.
func (f *IsolationForest) Score(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += pathLength(t.Root, x, 0)
	}
	eh := sum / float64(len(f.Trees))
	c := cFactor(f.SampleSize)
	if c <= 0 {
		c = 1
	}
	return math.Pow(2, -eh/c)
}

// Decide returns the raw score and whether x is an outlier.
func (f *IsolationForest) Decide(x []float64) (float64, bool, error) {
	if len(x) != f.Dims {
		return 0, false, fmt.Errorf("sample has %d features, model expects %d", len(x), f.Dims)
	}
	s := f.Score(x)
	if math.IsNaN(s) {
		return 0, false, fmt.Errorf("non-finite anomaly score")
	}
	return s, s > f.Threshold, nil
}

// upperQuantile returns the value below which (1-q) of scores fall, using
// linear interpolation between order statistics.
func upperQuantile(scores []float64, q float64) float64 {
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	pos := (1 - q) * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
