// Package retry decides whether and when a failed publication is retried.
package retry

import (
	"time"

	"github.com/kursadbilgin/publish-engine/internal/classify"
	"github.com/kursadbilgin/publish-engine/internal/domain"
)

type backoffRule struct {
	base       time.Duration
	ceiling    time.Duration
	maxRetries int
	fixed      bool
}

var rules = map[classify.RetryClass]backoffRule{
	classify.RetryClassRateLimit: {base: time.Hour, maxRetries: 3, fixed: true},
	classify.RetryClassNetwork:   {base: time.Minute, ceiling: 15 * time.Minute, maxRetries: 5},
	classify.RetryClassServer:    {base: 5 * time.Minute, ceiling: 30 * time.Minute, maxRetries: 3},
	classify.RetryClassDefault:   {base: time.Minute, ceiling: 10 * time.Minute, maxRetries: 3},
}

// Recommendation is the retry decision for one failure.
type Recommendation struct {
	ShouldRetry    bool                    `json:"shouldRetry"`
	Delay          time.Duration           `json:"-"`
	DelaySeconds   int64                   `json:"delaySeconds"`
	MaxRetries     int                     `json:"maxRetries"`
	Classification classify.Classification `json:"classification"`
}

// Recommend classifies err and applies the retry rules for retryCount prior retries.
func Recommend(err error, retryCount int, platformType domain.PlatformType) Recommendation {
	return ForClassification(classify.Classify(err, platformType), retryCount)
}

// ForClassification applies the retry rules to an existing classification.
func ForClassification(c classify.Classification, retryCount int) Recommendation {
	rec := Recommendation{
		MaxRetries:     MaxRetries(c.RetryClass),
		Classification: c,
	}

	rule, ok := rules[c.RetryClass]
	if !ok || !c.Recoverable {
		return rec
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= rule.maxRetries {
		return rec
	}

	rec.ShouldRetry = true
	rec.Delay = rule.delay(retryCount)
	rec.DelaySeconds = int64(rec.Delay / time.Second)
	return rec
}

// MaxRetries returns the retry ceiling for a class. Non-retryable classes return 0.
func MaxRetries(class classify.RetryClass) int {
	rule, ok := rules[class]
	if !ok {
		return 0
	}
	return rule.maxRetries
}

func (r backoffRule) delay(retryCount int) time.Duration {
	if r.fixed {
		return r.base
	}

	delay := r.base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= r.ceiling {
			return r.ceiling
		}
	}
	return min(delay, r.ceiling)
}
