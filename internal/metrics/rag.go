// Package metrics holds the Prometheus collectors for the build and ask pipelines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	askTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qarag_ask_total",
		Help: "Answered questions by outcome",
	}, []string{"outcome"}) // outcome=ok|cached|invalid|empty|canceled|error

	retrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qarag_retrieval_duration_seconds",
		Help:    "Time spent embedding the query and searching the store",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"mode"}) // mode=vector|lexical

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qarag_generation_duration_seconds",
		Help:    "Time spent streaming an answer from the generator",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"generator", "outcome"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qarag_cache_lookups_total",
		Help: "Answer cache lookups by result",
	}, []string{"result"}) // result=hit|miss

	indexedChunks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qarag_indexed_chunks",
		Help: "Number of chunks in the active collection",
	})

	embeddedTexts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qarag_embedded_texts_total",
		Help: "Texts sent to the embedder",
	}, []string{"embedder"})
)

// RecordAsk counts one ask by outcome.
func RecordAsk(outcome string) { askTotal.WithLabelValues(outcome).Inc() }

// ObserveRetrieval records retrieval latency.
func ObserveRetrieval(mode string, d time.Duration) {
	retrievalDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveGeneration records generator latency.
func ObserveGeneration(generator, outcome string, d time.Duration) {
	generationDuration.WithLabelValues(generator, outcome).Observe(d.Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func SetIndexedChunks(n int) { indexedChunks.Set(float64(n)) }

func AddEmbedded(embedder string, n int) {
	embeddedTexts.WithLabelValues(embedder).Add(float64(n))
}
