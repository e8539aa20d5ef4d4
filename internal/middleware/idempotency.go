package middleware

import (
	"bytes"
	"encoding/hex"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/crypto/blake2b"
)

// maxIdempotentBody bounds the request body read for fingerprinting
const maxIdempotentBody = 1 << 20

// transportHeaders describe the encoding of one particular response and are
// never replayed; the body is stored uncompressed
var transportHeaders = []string{"Content-Encoding", "Content-Length", "Vary"}

// IdempotencyStore stores idempotency key results
type IdempotencyStore struct {
	mu       sync.Mutex
	entries  *ttlcache.Cache[string, *idempotencyEntry]
	stopOnce sync.Once
}

type idempotencyEntry struct {
	status   int
	headers  http.Header
	body     []byte
	inFlight bool
	done     chan struct{}
}

// IdempotencyConfig holds configuration for idempotency middleware
type IdempotencyConfig struct {
	TTL      time.Duration // How long to keep idempotency results (default 24h)
	Capacity uint64        // Max remembered responses (default 1000)
}

// NewIdempotencyStore creates a new idempotency store and starts its expiry loop
func NewIdempotencyStore(cfg IdempotencyConfig) *IdempotencyStore {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = 1000
	}

	entries := ttlcache.New[string, *idempotencyEntry](
		ttlcache.WithTTL[string, *idempotencyEntry](cfg.TTL),
		ttlcache.WithCapacity[string, *idempotencyEntry](cfg.Capacity),
		ttlcache.WithDisableTouchOnHit[string, *idempotencyEntry](),
	)
	go entries.Start()

	return &IdempotencyStore{entries: entries}
}

// Stop stops the expiry loop. It is safe to call more than once.
func (s *IdempotencyStore) Stop() {
	s.stopOnce.Do(s.entries.Stop)
}

// Len returns the number of remembered requests
func (s *IdempotencyStore) Len() int {
	return s.entries.Len()
}

// claim returns the entry for key. owner is true when the caller created it
// and must run the request; otherwise the entry belongs to an earlier request.
func (s *IdempotencyStore) claim(key string) (entry *idempotencyEntry, owner bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.entries.Get(key); item != nil {
		return item.Value(), false
	}
	entry = &idempotencyEntry{inFlight: true, done: make(chan struct{})}
	// In-flight entries never expire; complete re-adds them with the TTL
	s.entries.Set(key, entry, ttlcache.NoTTL)
	return entry, true
}

// complete records the response. Server errors are forgotten so the client
// can retry with the same key.
func (s *IdempotencyStore) complete(key string, entry *idempotencyEntry, irw *idempotencyResponseWriter, before http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.status = irw.status
	entry.headers = handlerHeaders(before, irw.Header())
	entry.body = irw.body.Bytes()
	entry.inFlight = false
	close(entry.done)

	if entry.status >= http.StatusInternalServerError {
		s.entries.Delete(key)
		return
	}
	s.entries.Set(key, entry, ttlcache.DefaultTTL)
}

// handlerHeaders returns the headers set or changed after before was taken.
// Headers that outer middleware set for the request (CORS, request ID, rate
// limit) are identical in both and left out.
func handlerHeaders(before, after http.Header) http.Header {
	out := make(http.Header)
	for k, v := range after {
		if slices.Equal(before[k], v) {
			continue
		}
		out[k] = slices.Clone(v)
	}
	for _, k := range transportHeaders {
		out.Del(k)
	}
	return out
}

// fingerprint creates a unique key from the client, idempotency key, and request
func fingerprint(client, idempotencyKey, method, path string, body []byte) string {
	h, _ := blake2b.New256(nil)
	for _, part := range []string{client, idempotencyKey, method, path} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// idempotencyResponseWriter captures the response for caching
type idempotencyResponseWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *idempotencyResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func replay(w http.ResponseWriter, entry *idempotencyEntry) {
	for k, v := range entry.headers {
		w.Header()[k] = slices.Clone(v)
	}
	w.Header().Set("X-Idempotency-Replayed", "true")
	w.WriteHeader(entry.status)
	_, _ = w.Write(entry.body)
}

// Idempotency returns middleware that replays the response of a POST carrying
// an Idempotency-Key header instead of running the request again. A repeat
// that arrives while the first request is still running waits for it.
func Idempotency(store *IdempotencyStore) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || idempotencyKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Read and restore request body
			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := fingerprint(ClientIP(r), idempotencyKey, r.Method, r.URL.Path, body)

			entry, owner := store.claim(key)
			if !owner {
				select {
				case <-entry.done:
				case <-r.Context().Done():
					return
				}
				if entry.status < http.StatusInternalServerError {
					replay(w, entry)
					return
				}
				// The first attempt failed; run this one normally
				entry, owner = store.claim(key)
				if !owner {
					<-entry.done
					replay(w, entry)
					return
				}
			}

			before := w.Header().Clone()
			irw := &idempotencyResponseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			defer func() {
				if p := recover(); p != nil {
					irw.status = http.StatusInternalServerError
					store.complete(key, entry, irw, before)
					panic(p)
				}
			}()

			next.ServeHTTP(irw, r)
			store.complete(key, entry, irw, before)
		})
	}
}
