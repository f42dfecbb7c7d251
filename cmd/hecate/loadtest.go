package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/giall/hecate/session"
)

type loadtestOptions struct {
	accounts    int
	concurrency int
	ops         int
	capacity    int
	redisAddr   string
	prefix      string
}

// accountState is the newest session a worker knows for one account.
type accountState struct {
	id  string
	sid string
	mu  sync.Mutex
}

// NewLoadtestCmd creates the loadtest subcommand.
func NewLoadtestCmd() *cobra.Command {
	opts := loadtestOptions{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure session registry throughput against Redis",
		Long: `Seed session lists in Redis, then run a login phase (Add with
eviction) and a refresh phase (Rotate) from concurrent workers. Without
--redis-addr an in-process miniredis is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.accounts, "accounts", 10000, "number of accounts to seed")
	f.IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	f.IntVar(&opts.ops, "ops", 50000, "operations per phase")
	f.IntVar(&opts.capacity, "capacity", session.DefaultCapacity, "sessions kept per account")
	f.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; empty starts miniredis")
	f.StringVar(&opts.prefix, "prefix", "hs", "session key prefix")

	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, opts loadtestOptions) error {
	if opts.accounts <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return oops.Code("INVALID_ARGUMENT").Errorf("accounts, concurrency and ops must be > 0")
	}

	addr := opts.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return oops.Code("REDIS_CONNECT_FAILED").With("operation", "start miniredis").Wrap(err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	registry := session.NewRegistry(
		session.NewRedisStore(client, opts.prefix, 24*time.Hour),
		session.Config{Capacity: opts.capacity},
	)

	states := make([]accountState, opts.accounts)
	fmt.Fprintf(out, "seeding %d accounts...\n", opts.accounts)
	startSeed := time.Now()
	for i := range states {
		states[i].id = fmt.Sprintf("acct-%d", i)
		sid, err := registry.Add(ctx, states[i].id)
		if err != nil {
			return oops.Code("SEED_FAILED").With("account", states[i].id).Wrap(err)
		}
		states[i].sid = sid
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	login := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand) error {
		_, err := registry.Add(ctx, states[r.Intn(len(states))].id)
		return err
	})

	refresh := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()

		next, err := registry.Rotate(ctx, state.id, state.sid)
		if errors.Is(err, session.ErrNotMember) {
			// Evicted by the login phase; start a fresh session.
			next, err = registry.Add(ctx, state.id)
		}
		if err != nil {
			return err
		}
		state.sid = next
		return nil
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login", login)
	printStats(out, "refresh", refresh)
	return nil
}

// runPhase calls op ops times from concurrency workers and records each
// call's latency.
func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
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
				if atomic.AddInt64(&cursor, 1) > int64(ops) {
					return
				}
				t0 := time.Now()
				err := op(r)
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
		return phaseStats{total: total, failures: failures}
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

// percentile expects sorted samples.
func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
