package ingest

import (
	"bytes"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"
)

const headerIdempotencyKey = "Idempotency-Key"

// Idempotency replays the first successful response for a repeated
// Idempotency-Key instead of submitting the event again. Entries live in an
// in-process ristretto cache, so eviction can let a key through twice.
type Idempotency struct {
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

func NewIdempotency(maxCostBytes int64, ttl time.Duration) (*Idempotency, error) {
	if maxCostBytes < 1024 {
		maxCostBytes = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Idempotency{cache: c, ttl: ttl}, nil
}

func (i *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerIdempotencyKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		if body, ok := i.cache.Get(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.statusCode != http.StatusOK {
			return
		}
		body := append([]byte(nil), rec.body.Bytes()...)
		if !i.cache.SetWithTTL(key, body, int64(len(body)), i.ttl) {
			log.Warn().Str("key", key).Msg("idempotency: response not cached")
			return
		}
		i.cache.Wait()
	})
}

func (i *Idempotency) Close() {
	i.cache.Close()
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
