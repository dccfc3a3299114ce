package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// RandomForest is a bagged ensemble of CART classification trees using Gini
// impurity. Class probabilities are the mean of the per-tree leaf
// distributions, as in scikit-learn.
type RandomForest struct {
	Trees    []*cNode `json:"trees"`
	Classes  []string `json:"classes"`
	NumTrees int      `json:"num_trees"`
	MaxDepth int      `json:"max_depth"`
	Dims     int      `json:"dims"`
}

type cNode struct {
	Leaf     bool      `json:"leaf,omitempty"`
	Dist     []float64 `json:"dist,omitempty"`
	Dim      int       `json:"dim,omitempty"`
	SplitVal float64   `json:"split_val,omitempty"`
	Left     *cNode    `json:"left,omitempty"`
	Right    *cNode    `json:"right,omitempty"`
}

// NewRandomForest returns an unfitted forest.
func NewRandomForest(numTrees, maxDepth int) *RandomForest {
	if numTrees <= 0 {
		numTrees = 50
	}
	if maxDepth <= 0 {
		maxDepth = 32
	}
	return &RandomForest{NumTrees: numTrees, MaxDepth: maxDepth}
}

// Fit trains on parallel X and labels. Labels are free-form; the class set
// is the sorted set of distinct labels. f is untouched on error.
func (f *RandomForest) Fit(ctx context.Context, X [][]float64, labels []string, rng *rand.Rand) error {
	if len(X) == 0 {
		return fmt.Errorf("no training data provided")
	}
	if len(X) != len(labels) {
		return fmt.Errorf("got %d samples but %d labels", len(X), len(labels))
	}
	dims := len(X[0])
	for i, row := range X {
		if len(row) != dims {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), dims)
		}
	}

	classes := distinct(labels)
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	y := make([]int, len(labels))
	for i, l := range labels {
		y[i] = index[l]
	}

	b := &treeBuilder{
		X:        X,
		y:        y,
		nClasses: len(classes),
		maxDepth: f.MaxDepth,
		maxFeat:  max(1, int(math.Sqrt(float64(dims)))),
		rng:      rng,
	}
	trees := make([]*cNode, f.NumTrees)
	n := len(X)
	for t := 0; t < f.NumTrees; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		// bootstrap sample
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		trees[t] = b.build(idx, 0)
	}

	*f = RandomForest{Trees: trees, Classes: classes, NumTrees: f.NumTrees, MaxDepth: f.MaxDepth, Dims: dims}
	return nil
}

// Fitted reports whether the forest has trees.
func (f *RandomForest) Fitted() bool { return len(f.Trees) > 0 }

// PredictProba returns the mean class distribution for x, indexed like Classes.
func (f *RandomForest) PredictProba(x []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("forest not fitted")
	}
	if len(x) != f.Dims {
		return nil, fmt.Errorf("sample has %d features, model expects %d", len(x), f.Dims)
	}
	proba := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		node := t
		for !node.Leaf {
			if x[node.Dim] <= node.SplitVal {
				node = node.Left
			} else {
				node = node.Right
			}
		}
		if len(node.Dist) != len(proba) {
			return nil, fmt.Errorf("leaf distribution has %d classes, want %d", len(node.Dist), len(proba))
		}
		for i, p := range node.Dist {
			proba[i] += p
		}
	}
	for i := range proba {
		proba[i] /= float64(len(f.Trees))
	}
	return proba, nil
}

// Predict returns the most probable class and its probability. Ties go to
// the lexically smallest class.
func (f *RandomForest) Predict(x []float64) (string, float64, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return "", 0, err
	}
	best := 0
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return f.Classes[best], proba[best], nil
}

type treeBuilder struct {
	X        [][]float64
	y        []int
	nClasses int
	maxDepth int
	maxFeat  int
	rng      *rand.Rand
}

func (b *treeBuilder) leaf(counts []int, n int) *cNode {
	dist := make([]float64, b.nClasses)
	for i, c := range counts {
		dist[i] = float64(c) / float64(n)
	}
	return &cNode{Leaf: true, Dist: dist}
}

func (b *treeBuilder) build(idx []int, depth int) *cNode {
	counts := make([]int, b.nClasses)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	if depth >= b.maxDepth || len(idx) < 2 || pure(counts) {
		return b.leaf(counts, len(idx))
	}

	dim, split, ok := b.bestSplit(idx, counts)
	if !ok {
		return b.leaf(counts, len(idx))
	}
	var left, right []int
	for _, i := range idx {
		if b.X[i][dim] <= split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return b.leaf(counts, len(idx))
	}
	return &cNode{
		Dim:      dim,
		SplitVal: split,
		Left:     b.build(left, depth+1),
		Right:    b.build(right, depth+1),
	}
}

// bestSplit scans a random feature subset for the threshold with the
// lowest weighted Gini impurity.
func (b *treeBuilder) bestSplit(idx []int, counts []int) (int, float64, bool) {
	n := len(idx)
	bestGini := gini(counts, n)
	bestDim, bestVal, found := 0, 0.0, false

	dims := b.rng.Perm(len(b.X[0]))[:b.maxFeat]
	sorted := make([]int, n)
	left := make([]int, b.nClasses)
	right := make([]int, b.nClasses)
	for _, d := range dims {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.X[sorted[i]][d] < b.X[sorted[j]][d] })
		for c := range left {
			left[c] = 0
		}
		copy(right, counts)
		for k := 0; k < n-1; k++ {
			cls := b.y[sorted[k]]
			left[cls]++
			right[cls]--
			v, next := b.X[sorted[k]][d], b.X[sorted[k+1]][d]
			if v == next {
				continue
			}
			nl, nr := k+1, n-k-1
			g := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(n)
			if g < bestGini-1e-12 {
				bestGini, bestDim, bestVal, found = g, d, v+(next-v)/2, true
			}
		}
	}
	return bestDim, bestVal, found
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

func pure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func distinct(labels []string) []string {
	seen := make(map[string]struct{}, 16)
	out := make([]string, 0, 16)
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}
