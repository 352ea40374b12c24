// Command relayauth-loadtest measures the hot paths behind relayauth under
// concurrency: the client's in-memory limiter and the reference backend's
// Redis session lookups and refresh rotations.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/relayauth/internal/rate"
	"github.com/MrEthical07/relayauth/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sessionState struct {
	sid  string
	hash [32]byte
	mu   sync.Mutex
}

func main() {
	var (
		sessions    = flag.Int("sessions", 20000, "number of refresh sessions to seed")
		identities  = flag.Int("identities", 50000, "distinct identities for the limiter phase")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "ras", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *identities <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, identities, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	store := stores.NewSessionStore(client, *prefix)
	states := make([]sessionState, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range states {
		states[i] = sessionState{sid: fmt.Sprintf("sid-%d", i), hash: hashFor(i)}
		rec := &stores.SessionRecord{
			SessionID:   states[i].sid,
			UserID:      fmt.Sprintf("user-%d", i%1000),
			Email:       fmt.Sprintf("user%d@load.test", i%1000),
			Scope:       1,
			RefreshHash: states[i].hash,
			ExpiresAt:   time.Now().Add(24 * time.Hour).Unix(),
		}
		if err := store.Save(ctx, rec, 24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	limiterStats := runLimiterPhase(*identities, *ops, *concurrency)
	getStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, err := store.Get(ctx, states[r.Intn(len(states))].sid)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()
		next := nextHash(state.hash, i+1)
		_, err := store.Rotate(ctx, state.sid, state.hash, next, time.Now().Add(24*time.Hour), 24*time.Hour)
		if err == nil {
			state.hash = next
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("limiter", limiterStats)
	printStats("session-get", getStats)
	printStats("refresh", refreshStats)
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runLimiterPhase spreads login checks over identities the way many
// concurrent screens would, with the client's default login policy.
func runLimiterPhase(identities, ops, concurrency int) phaseStats {
	l := rate.New(rate.WithMaxKeys(identities / 2))
	policy := rate.Policy{MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute}
	var denied int64
	stats := runPhase(ops, concurrency, func(r *rand.Rand, _ int) error {
		if d := l.Check(rate.Key("login", fmt.Sprintf("id%d@load.test", r.Intn(identities))), policy); !d.Allowed {
			atomic.AddInt64(&denied, 1)
		}
		return nil
	})
	fmt.Printf("limiter: keys=%d evicted=%d denied=%d\n", l.Len(), l.Evicted(), denied)
	return stats
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures,
		s.total.Round(time.Millisecond), s.opsPerS,
		s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond),
	)
}

func hashFor(i int) [32]byte {
	var out [32]byte
	for j := range out {
		out[j] = byte((i + j*17 + 11) % 251)
	}
	return out
}

func nextHash(current [32]byte, salt int) [32]byte {
	out := current
	for i := range out {
		out[i] ^= byte((salt + i*13) & 0xFF)
	}
	return out
}
