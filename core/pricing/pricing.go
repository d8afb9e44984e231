// Package pricing produces suggested sale prices for uploaded tracks.
//
// None of the estimators look at the audio itself. They combine the file size,
// the container format and a random factor, which is all the marketplace
// promises its sellers.
package pricing

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"trackmarket/model"
)

const (
	Currency = "RUB"

	mb = 1024 * 1024

	analyzeBase     = 5000
	analyzeMinPrice = 3000
	analyzeMaxPrice = 25000
	analyzeStep     = 1000

	qualityBonus  = 500 // Evaluate: files over 5 MB
	losslessBonus = 300 // Evaluate: .wav / .flac
)

var (
	qualityLabels = []string{"Excellent", "Good", "High"}
	genres        = []string{"Electronic", "Pop", "Hip-Hop", "Rock", "Jazz", "Ambient"}
	demandLabels  = []string{"High", "Medium", "Above average"}
)

// Estimator is safe for concurrent use.
type Estimator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns an estimator seeded from the clock.
func New() *Estimator {
	return NewWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewWithSource makes the estimator deterministic for tests.
func NewWithSource(src rand.Source) *Estimator {
	return &Estimator{rnd: rand.New(src)}
}

// intn returns a uniform integer in [lo, hi].
func (e *Estimator) intn(lo, hi int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lo + e.rnd.Intn(hi-lo+1)
}

func (e *Estimator) float(lo, hi float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lo + e.rnd.Float64()*(hi-lo)
}

func (e *Estimator) pick(xs []string) string {
	return xs[e.intn(0, len(xs)-1)]
}

// Quick is the instant estimate shown right after a file is picked:
// a uniform price in [1000, 4999].
func (e *Estimator) Quick() int64 {
	return int64(e.intn(1000, 4999))
}

// Analyze prices a track by size tier and a random genre multiplier, clamped
// to [3000, 25000] and rounded down to a whole thousand.
func (e *Estimator) Analyze(fileName string, size int64) model.Estimate {
	sizeMB := float64(size) / mb

	var quality float64
	switch {
	case sizeMB > 10:
		quality = 2.0
	case sizeMB > 5:
		quality = 1.5
	case sizeMB > 2:
		quality = 1.2
	default:
		quality = 0.8
	}

	price := int64(analyzeBase * quality * e.float(0.8, 1.5))
	price = clamp(price, analyzeMinPrice, analyzeMaxPrice)
	price = price / analyzeStep * analyzeStep

	qualityLabel := "medium"
	if sizeMB > 5 {
		qualityLabel = "high"
	}
	rec := recommendation(price)

	return model.Estimate{
		EstimatedPrice: price,
		Currency:       Currency,
		FileName:       fileName,
		FileSize:       size,
		Analysis: model.Analysis{
			Quality:        qualityLabel,
			Genre:          "Electronic",
			Recommendation: rec,
		},
		Recommendation: rec,
	}
}

// Tags is optional metadata read from the file itself.
type Tags struct {
	Genre string
}

// Evaluate is the full estimate used by the upload form.
func (e *Estimator) Evaluate(fileName string, size int64, tags Tags) model.Estimate {
	price := int64(e.intn(1000, 5000))
	if size > 5*mb {
		price += qualityBonus
	}
	if isLossless(fileName) {
		price += losslessBonus
	}

	genre := strings.TrimSpace(tags.Genre)
	if genre == "" {
		genre = e.pick(genres)
	}
	duration := model.FormatDuration(e.intn(2, 6)*60 + e.intn(0, 59))

	return model.Estimate{
		EstimatedPrice: price,
		Currency:       Currency,
		Confidence:     e.intn(85, 98),
		FileName:       fileName,
		FileSize:       size,
		Analysis: model.Analysis{
			Quality:         e.pick(qualityLabels),
			Genre:           genre,
			Duration:        duration,
			PotentialDemand: e.pick(demandLabels),
		},
		Recommendation: fmt.Sprintf("The track has good sales potential. Recommended price: %d ₽", price),
	}
}

func isLossless(fileName string) bool {
	lower := strings.ToLower(fileName)
	return strings.Contains(lower, ".wav") || strings.Contains(lower, ".flac")
}

func recommendation(price int64) string {
	return fmt.Sprintf("Recommended price based on analysis: %d ₽", price)
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParseDuration turns "m:ss" back into seconds; malformed input yields 0.
func ParseDuration(s string) int {
	var m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d", &m, &sec); err != nil {
		return 0
	}
	return m*60 + sec
}

// TitleFromFileName strips directories and the extension.
func TitleFromFileName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
