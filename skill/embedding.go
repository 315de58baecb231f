package skill

import (
	"errors"
	"math"
	"math/rand"

	"github.com/gofrs/uuid/v5"
	"gonum.org/v1/gonum/floats"
)

// Hidden layer widths of the win-predictor head.
const (
	hidden1 = 64
	hidden2 = 32
)

var (
	ErrModelUntrained     = errors.New("skill: model not trained")
	ErrUnknownPlayer      = errors.New("skill: player unknown to embedding table")
	ErrEmbeddingTableFull = errors.New("skill: embedding table full")
)

// EmbeddingModel is the pairwise win-probability model: each known player
// carries a learned embedding, a linear projection folds that player's
// normalized per-game stat vector into it, a team is the mean of its
// players' vectors, and a small feed-forward head maps the difference of
// the two team representations to P(A wins).
//
// Fields are exported for gob serialization; treat them as read-only
// outside training.
type EmbeddingModel struct {
	Dim        int
	StatDim    int
	MaxPlayers int

	Index      map[uuid.UUID]int
	Embeddings [][]float64 // MaxPlayers x Dim
	Projection [][]float64 // Dim x StatDim

	W1 [][]float64 // hidden1 x Dim
	B1 []float64
	W2 [][]float64 // hidden2 x hidden1
	B2 []float64
	W3 []float64 // hidden2
	B3 float64

	// Self-report seeding layer: maps a claimed skill in [0,1] to an
	// initial embedding so cold players start in a plausible region.
	SkillInitW []float64 // Dim
	SkillInitB []float64 // Dim

	Trained bool
}

// NewEmbeddingModel builds an untrained model with seeded random weights.
func NewEmbeddingModel(s *PredictorSettings, seed int64) *EmbeddingModel {
	rng := rand.New(rand.NewSource(seed))
	m := &EmbeddingModel{
		Dim:        s.EmbeddingDim,
		StatDim:    s.StatDim,
		MaxPlayers: s.MaxPlayers,
		Index:      make(map[uuid.UUID]int),
	}

	m.Embeddings = make([][]float64, m.MaxPlayers)
	for i := range m.Embeddings {
		m.Embeddings[i] = normalVector(rng, m.Dim, 0.1)
	}
	m.Projection = xavierMatrix(rng, m.Dim, m.StatDim)
	m.W1 = xavierMatrix(rng, hidden1, m.Dim)
	m.B1 = make([]float64, hidden1)
	m.W2 = xavierMatrix(rng, hidden2, hidden1)
	m.B2 = make([]float64, hidden2)
	m.W3 = xavierVector(rng, hidden2)
	m.SkillInitW = xavierVector(rng, m.Dim)
	m.SkillInitB = make([]float64, m.Dim)
	return m
}

// EnsurePlayer assigns an embedding row to the player, seeding it from the
// self-reported skill on first sight. Returns the row index.
func (m *EmbeddingModel) EnsurePlayer(id uuid.UUID, selfReported float64) (int, error) {
	if idx, ok := m.Index[id]; ok {
		return idx, nil
	}
	if len(m.Index) >= m.MaxPlayers {
		return 0, ErrEmbeddingTableFull
	}
	idx := len(m.Index)
	m.Index[id] = idx

	scale := math.Max(selfReported, 1.0) / 10.0
	row := m.Embeddings[idx]
	for d := 0; d < m.Dim; d++ {
		row[d] = (m.SkillInitW[d]*scale + m.SkillInitB[d]) * scale
	}
	return idx, nil
}

// PredictWin returns P(team A wins) from embeddings alone, the quick path
// used during split search. Unknown players and untrained weights are
// degraded-but-expected failures for the caller to fall through on.
func (m *EmbeddingModel) PredictWin(teamA, teamB []uuid.UUID) (float64, error) {
	if m == nil || !m.Trained {
		return 0, ErrModelUntrained
	}
	if len(teamA) == 0 || len(teamB) == 0 {
		return 0, ErrUnknownPlayer
	}
	repA, err := m.meanEmbedding(teamA)
	if err != nil {
		return 0, err
	}
	repB, err := m.meanEmbedding(teamB)
	if err != nil {
		return 0, err
	}
	diff := make([]float64, m.Dim)
	floats.SubTo(diff, repA, repB)
	_, _, _, _, logit := m.forward(diff)
	return sigmoid(logit), nil
}

func (m *EmbeddingModel) meanEmbedding(team []uuid.UUID) ([]float64, error) {
	rep := make([]float64, m.Dim)
	for _, id := range team {
		idx, ok := m.Index[id]
		if !ok {
			return nil, ErrUnknownPlayer
		}
		floats.Add(rep, m.Embeddings[idx])
	}
	floats.Scale(1/float64(len(team)), rep)
	return rep, nil
}

func (m *EmbeddingModel) forward(diff []float64) (z1, a1, z2, a2 []float64, logit float64) {
	z1 = make([]float64, hidden1)
	a1 = make([]float64, hidden1)
	for i := 0; i < hidden1; i++ {
		z1[i] = floats.Dot(m.W1[i], diff) + m.B1[i]
		a1[i] = math.Max(z1[i], 0)
	}
	z2 = make([]float64, hidden2)
	a2 = make([]float64, hidden2)
	for i := 0; i < hidden2; i++ {
		z2[i] = floats.Dot(m.W2[i], a1) + m.B2[i]
		a2[i] = math.Max(z2[i], 0)
	}
	logit = floats.Dot(m.W3, a2) + m.B3
	return z1, a1, z2, a2, logit
}

// EmbeddingReport summarizes one training run.
type EmbeddingReport struct {
	FinalLoss     float64 `json:"final_loss"`
	FinalAccuracy float64 `json:"final_accuracy"`
	Epochs        int     `json:"epochs"`
	Games         int     `json:"games"`
}

// Train fits the model with plain SGD on binary cross-entropy over a fixed
// epoch count. The corpus order is preserved, so runs are reproducible for
// a given seed and corpus.
func (m *EmbeddingModel) Train(corpus []TrainingGame, epochs int, lr float64) EmbeddingReport {
	report := EmbeddingReport{Epochs: epochs, Games: len(corpus)}
	if len(corpus) == 0 {
		return report
	}

	for epoch := 0; epoch < epochs; epoch++ {
		var epochLoss float64
		var correct int

		for _, game := range corpus {
			idxA, repA, ok := m.teamForward(game.TeamAIDs, game.TeamAStats)
			if !ok {
				continue
			}
			idxB, repB, ok := m.teamForward(game.TeamBIDs, game.TeamBStats)
			if !ok {
				continue
			}

			diff := make([]float64, m.Dim)
			floats.SubTo(diff, repA, repB)
			z1, a1, z2, a2, logit := m.forward(diff)
			p := sigmoid(logit)

			label := 0.0
			if game.TeamAWon {
				label = 1.0
			}
			epochLoss += bceLoss(p, label)
			if (p > 0.5) == game.TeamAWon {
				correct++
			}

			// Backprop. dLoss/dlogit for sigmoid+BCE is (p - y).
			dLogit := p - label

			dA2 := make([]float64, hidden2)
			for i := 0; i < hidden2; i++ {
				dA2[i] = dLogit * m.W3[i]
				m.W3[i] -= lr * dLogit * a2[i]
			}
			m.B3 -= lr * dLogit

			dA1 := make([]float64, hidden1)
			for i := 0; i < hidden2; i++ {
				if z2[i] <= 0 {
					continue
				}
				dz := dA2[i]
				for j := 0; j < hidden1; j++ {
					dA1[j] += dz * m.W2[i][j]
					m.W2[i][j] -= lr * dz * a1[j]
				}
				m.B2[i] -= lr * dz
			}

			dDiff := make([]float64, m.Dim)
			for i := 0; i < hidden1; i++ {
				if z1[i] <= 0 {
					continue
				}
				dz := dA1[i]
				for j := 0; j < m.Dim; j++ {
					dDiff[j] += dz * m.W1[i][j]
					m.W1[i][j] -= lr * dz * diff[j]
				}
				m.B1[i] -= lr * dz
			}

			// Team representations are means, so each member receives an
			// equal share of the gradient; team B's sign flips.
			m.applyTeamGradient(idxA, game.TeamAStats, dDiff, lr, 1/float64(len(idxA)))
			m.applyTeamGradient(idxB, game.TeamBStats, dDiff, lr, -1/float64(len(idxB)))
		}

		report.FinalLoss = epochLoss / float64(len(corpus))
		report.FinalAccuracy = float64(correct) / float64(len(corpus))
	}

	m.Trained = true
	return report
}

// teamForward resolves a team's rows and computes mean(embedding + P*stats).
func (m *EmbeddingModel) teamForward(ids []uuid.UUID, statVectors [][]float64) (indices []int, rep []float64, ok bool) {
	if len(ids) == 0 {
		return nil, nil, false
	}
	indices = make([]int, len(ids))
	rep = make([]float64, m.Dim)
	for i, id := range ids {
		idx, found := m.Index[id]
		if !found {
			return nil, nil, false
		}
		indices[i] = idx

		row := make([]float64, m.Dim)
		copy(row, m.Embeddings[idx])
		if i < len(statVectors) && len(statVectors[i]) == m.StatDim {
			for d := 0; d < m.Dim; d++ {
				row[d] += floats.Dot(m.Projection[d], statVectors[i])
			}
		}
		floats.Add(rep, row)
	}
	floats.Scale(1/float64(len(ids)), rep)
	return indices, rep, true
}

func (m *EmbeddingModel) applyTeamGradient(indices []int, statVectors [][]float64, dDiff []float64, lr, share float64) {
	for i, idx := range indices {
		emb := m.Embeddings[idx]
		for d := 0; d < m.Dim; d++ {
			g := dDiff[d] * share
			emb[d] -= lr * g
			if i < len(statVectors) && len(statVectors[i]) == m.StatDim {
				for s := 0; s < m.StatDim; s++ {
					m.Projection[d][s] -= lr * g * statVectors[i][s]
				}
			}
		}
	}
}

// Clone deep-copies the model so training can run against a private copy
// while readers keep the current snapshot.
func (m *EmbeddingModel) Clone() *EmbeddingModel {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Index = make(map[uuid.UUID]int, len(m.Index))
	for k, v := range m.Index {
		cp.Index[k] = v
	}
	cp.Embeddings = cloneMatrix(m.Embeddings)
	cp.Projection = cloneMatrix(m.Projection)
	cp.W1 = cloneMatrix(m.W1)
	cp.B1 = append([]float64(nil), m.B1...)
	cp.W2 = cloneMatrix(m.W2)
	cp.B2 = append([]float64(nil), m.B2...)
	cp.W3 = append([]float64(nil), m.W3...)
	cp.SkillInitW = append([]float64(nil), m.SkillInitW...)
	cp.SkillInitB = append([]float64(nil), m.SkillInitB...)
	return &cp
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// bceLoss with clamped probabilities so log never sees 0.
func bceLoss(p, y float64) float64 {
	const eps = 1e-7
	p = math.Max(eps, math.Min(1-eps, p))
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

func normalVector(rng *rand.Rand, n int, std float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64() * std
	}
	return v
}

func xavierMatrix(rng *rand.Rand, rows, cols int) [][]float64 {
	limit := math.Sqrt(6.0 / float64(rows+cols))
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = (rng.Float64()*2 - 1) * limit
		}
	}
	return m
}

func xavierVector(rng *rand.Rand, n int) []float64 {
	limit := math.Sqrt(6.0 / float64(n+1))
	v := make([]float64, n)
	for i := range v {
		v[i] = (rng.Float64()*2 - 1) * limit
	}
	return v
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = append([]float64(nil), m[i]...)
	}
	return out
}
