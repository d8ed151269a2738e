// Package ranker learns which market profiles the user likes and proposes
// coins they have not rated yet.
package ranker

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"easy2trade/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientData means there are too few rated rows to train on.
	ErrInsufficientData = errors.New("not enough rated data to train a model")
	ErrModelNotFound    = errors.New("no trained model, train the model first")
)

const (
	// MinLabeledRows and MinPerClass gate training.
	MinLabeledRows = 5
	MinPerClass    = 2
	// ShortlistSize is the number of coins Recommend returns at most.
	ShortlistSize = 5

	testFraction = 0.2
	splitSeed    = 42
	l2Penalty    = 0.1
)

type Model struct {
	Columns   []string  `msgpack:"columns" json:"columns"`
	Weights   []float64 `msgpack:"weights" json:"weights"`
	Bias      float64   `msgpack:"bias" json:"bias"`
	Means     []float64 `msgpack:"means" json:"-"`
	Scales    []float64 `msgpack:"scales" json:"-"`
	Accuracy  float64   `msgpack:"accuracy" json:"accuracy"`
	TrainRows int       `msgpack:"train_rows" json:"train_rows"`
	TestRows  int       `msgpack:"test_rows" json:"test_rows"`
	TrainedAt time.Time `msgpack:"trained_at" json:"trained_at"`
}

// Train fits a logistic regression on the rated rows of the feature table.
// Rows with a positive score are likes, negative scores are dislikes and
// unrated rows are ignored.
func Train(rows []types.FeatureRow) (*Model, error) {
	var labeled []types.FeatureRow
	var y []float64
	likes, dislikes := 0, 0
	for _, r := range rows {
		r, ok := prepare(r)
		if !ok || r.Score == 0 {
			continue
		}
		labeled = append(labeled, r)
		if r.Score > 0 {
			y = append(y, 1)
			likes++
		} else {
			y = append(y, 0)
			dislikes++
		}
	}

	if len(labeled) < MinLabeledRows || likes < MinPerClass || dislikes < MinPerClass {
		return nil, errors.Wrapf(ErrInsufficientData,
			"%d rated rows (%d liked, %d disliked), need %d with at least %d of each",
			len(labeled), likes, dislikes, MinLabeledRows, MinPerClass)
	}

	columns := columnsFor(labeled)
	X := make([][]float64, len(labeled))
	for i, r := range labeled {
		X[i] = encode(r, columns)
	}

	perm := rand.New(rand.NewSource(splitSeed)).Perm(len(labeled))
	nTest := int(math.Ceil(testFraction * float64(len(labeled))))
	testIdx, trainIdx := perm[:nTest], perm[nTest:]

	m := &Model{
		Columns:   columns,
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
		TrainedAt: time.Now().UTC(),
	}
	m.fitScaler(X, trainIdx)

	trainX := make([][]float64, len(trainIdx))
	trainY := make([]float64, len(trainIdx))
	for i, idx := range trainIdx {
		trainX[i] = m.scale(X[idx])
		trainY[i] = y[idx]
	}
	if err := m.fit(trainX, trainY); err != nil {
		return nil, err
	}

	correct := 0
	for _, idx := range testIdx {
		predicted := 0.0
		if m.probability(X[idx]) >= 0.5 {
			predicted = 1
		}
		if predicted == y[idx] {
			correct++
		}
	}
	m.Accuracy = float64(correct) / float64(len(testIdx))
	return m, nil
}

func (m *Model) fitScaler(X [][]float64, idx []int) {
	d := len(m.Columns)
	m.Means = make([]float64, d)
	m.Scales = make([]float64, d)

	col := make([]float64, len(idx))
	for j := 0; j < d; j++ {
		for i, k := range idx {
			col[i] = X[k][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) || std == 0 {
			std = 1
		}
		m.Means[j] = mean
		m.Scales[j] = std
	}
}

func (m *Model) scale(x []float64) []float64 {
	out := make([]float64, len(x))
	for j := range x {
		out[j] = (x[j] - m.Means[j]) / m.Scales[j]
	}
	return out
}

// fit minimizes the mean log loss plus an L2 penalty on the weights.
// params holds the weights followed by the bias.
func (m *Model) fit(X [][]float64, y []float64) error {
	d := len(m.Columns)
	n := float64(len(X))

	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			w, b := params[:d], params[d]
			loss := 0.0
			for i, x := range X {
				z := floats.Dot(w, x) + b
				loss += softplus(z) - y[i]*z
			}
			return loss/n + l2Penalty/2*floats.Dot(w, w)
		},
		Grad: func(grad, params []float64) {
			w, b := params[:d], params[d]
			for j := range grad {
				grad[j] = 0
			}
			for i, x := range X {
				r := sigmoid(floats.Dot(w, x)+b) - y[i]
				floats.AddScaled(grad[:d], r/n, x)
				grad[d] += r / n
			}
			floats.AddScaled(grad[:d], l2Penalty, w)
		},
	}

	initial := make([]float64, d+1)
	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return errors.Wrap(err, "model training failed")
		}
	}
	if result.Status != optimize.Success && result.Status != optimize.GradientThreshold && result.Status != optimize.FunctionConvergence {
		log.Warnf("model training stopped early: status=%v", result.Status)
	}

	m.Weights = append([]float64(nil), result.X[:d]...)
	m.Bias = result.X[d]
	return nil
}

// Probability returns the predicted chance that the user likes row, or
// false when the row lacks a required feature.
func (m *Model) Probability(row types.FeatureRow) (float64, bool) {
	row, ok := prepare(row)
	if !ok {
		return 0, false
	}
	return m.probability(encode(row, m.Columns)), true
}

func (m *Model) probability(x []float64) float64 {
	return sigmoid(floats.Dot(m.Weights, m.scale(x)) + m.Bias)
}

type Recommendation struct {
	Coin        string  `json:"coin"`
	Probability float64 `json:"probability"`
}

// Recommend ranks the unrated rows by predicted like probability and returns
// at most ShortlistSize distinct coins. The list is empty, not an error,
// when none of likedCoins has a liked row or no unrated row is left.
func Recommend(m *Model, rows []types.FeatureRow, likedCoins []string) []Recommendation {
	liked := make(map[string]bool, len(likedCoins))
	for _, c := range likedCoins {
		liked[types.NormalizeTicker(c)] = true
	}

	hasLiked := false
	var candidates []Recommendation
	for _, r := range rows {
		coin := types.NormalizeTicker(r.Coin)
		if r.Score > 0 && liked[coin] {
			hasLiked = true
		}
		if r.Score != 0 {
			continue
		}
		p, ok := m.Probability(r)
		if !ok {
			continue
		}
		candidates = append(candidates, Recommendation{Coin: coin, Probability: p})
	}
	if !hasLiked || len(candidates) == 0 {
		return []Recommendation{}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Probability > candidates[j].Probability
	})

	out := make([]Recommendation, 0, ShortlistSize)
	seen := make(map[string]bool)
	for _, c := range candidates {
		if seen[c.Coin] {
			continue
		}
		seen[c.Coin] = true
		out = append(out, c)
		if len(out) == ShortlistSize {
			break
		}
	}
	return out
}

func (m *Model) Save(path string) error {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "could not encode model")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "could not create model directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "could not write model")
	}
	return errors.Wrap(os.Rename(tmp, path), "could not replace model")
}

func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrModelNotFound, "%s", path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not read model")
	}

	var m Model
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "could not decode model %s", path)
	}
	if len(m.Weights) != len(m.Columns) || len(m.Means) != len(m.Columns) || len(m.Scales) != len(m.Columns) {
		return nil, errors.Errorf("model %s is corrupt", path)
	}
	return &m, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// softplus is log(1+e^z) without overflow for large z.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
