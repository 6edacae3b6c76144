package scoring

import (
	"math"
	"math/rand"
)

// Forest is an isolation forest: an ensemble of randomly built binary trees
// where outliers isolate in fewer splits than inliers. Scores are normalized
// to [0,1] with higher meaning more anomalous. A forest is immutable after
// Fit, so scoring the same vector always yields the same result.
type Forest struct {
	trees      []*treeNode
	sampleSize int
	dimensions int
	trained    bool
}

type treeNode struct {
	splitDim int
	splitVal float64
	left     *treeNode
	right    *treeNode
	size     int // population at this node when it became a leaf
}

// NewForest creates an untrained forest.
func NewForest(numTrees, sampleSize int) *Forest {
	if numTrees <= 0 {
		numTrees = 100
	}
	if sampleSize <= 0 {
		sampleSize = 256
	}
	return &Forest{
		trees:      make([]*treeNode, 0, numTrees),
		sampleSize: sampleSize,
	}
}

// Trained reports whether Fit has completed.
func (f *Forest) Trained() bool {
	return f.trained
}

// Fit builds the ensemble over the training data. The caller supplies the
// random source; a fixed seed makes training reproducible.
func (f *Forest) Fit(data [][]float64, rng *rand.Rand) {
	if len(data) == 0 {
		return
	}
	f.dimensions = len(data[0])

	sample := f.sampleSize
	if sample > len(data) {
		sample = len(data)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sample))))

	numTrees := cap(f.trees)
	f.trees = f.trees[:0]
	for i := 0; i < numTrees; i++ {
		subset := make([][]float64, sample)
		for j := range subset {
			subset[j] = data[rng.Intn(len(data))]
		}
		f.trees = append(f.trees, buildTree(subset, 0, maxDepth, rng))
	}
	f.sampleSize = sample
	f.trained = true
}

// Score returns the normalized anomaly score for a feature vector.
// Returns 0 on an untrained forest; callers gate on Trained.
func (f *Forest) Score(features []float64) float64 {
	if !f.trained || len(f.trees) == 0 {
		return 0
	}

	var total float64
	for _, tree := range f.trees {
		total += pathLength(tree, features, 0)
	}
	avg := total / float64(len(f.trees))

	norm := averagePathLength(f.sampleSize)
	if norm <= 0 {
		return 0
	}
	return math.Pow(2, -avg/norm)
}

func buildTree(data [][]float64, depth, maxDepth int, rng *rand.Rand) *treeNode {
	if len(data) <= 1 || depth >= maxDepth {
		return &treeNode{size: len(data)}
	}

	dims := len(data[0])
	// Pick a random dimension that still has spread; give up after a few tries.
	var splitDim int
	var lo, hi float64
	found := false
	for attempt := 0; attempt < dims*2; attempt++ {
		d := rng.Intn(dims)
		mn, mx := data[0][d], data[0][d]
		for _, row := range data[1:] {
			if row[d] < mn {
				mn = row[d]
			}
			if row[d] > mx {
				mx = row[d]
			}
		}
		if mx > mn {
			splitDim, lo, hi = d, mn, mx
			found = true
			break
		}
	}
	if !found {
		return &treeNode{size: len(data)}
	}

	splitVal := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range data {
		if row[splitDim] < splitVal {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{size: len(data)}
	}

	return &treeNode{
		splitDim: splitDim,
		splitVal: splitVal,
		left:     buildTree(left, depth+1, maxDepth, rng),
		right:    buildTree(right, depth+1, maxDepth, rng),
	}
}

func pathLength(node *treeNode, features []float64, depth int) float64 {
	if node.left == nil && node.right == nil {
		return float64(depth) + averagePathLength(node.size)
	}
	if features[node.splitDim] < node.splitVal {
		return pathLength(node.left, features, depth+1)
	}
	return pathLength(node.right, features, depth+1)
}

const eulerMascheroni = 0.5772156649

// averagePathLength is c(n), the expected path length of an unsuccessful
// BST search over n points; used to normalize isolation depths.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerMascheroni) - 2*(fn-1)/fn
}
