// Package importer loads an OSPF link-state database into the topology tables and
// names the routers it finds.
package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"netmap/internal/db"
	"netmap/internal/metrics"
	"netmap/internal/naming"
	"netmap/internal/ospf"
	"netmap/internal/sqlcgen"
)

// Queries is what the import transaction writes through. *sqlcgen.Queries satisfies it.
type Queries interface {
	EnsureMap(ctx context.Context, name string) (sqlcgen.Map, error)
	DeleteLinks(ctx context.Context) error
	InsertLink(ctx context.Context, arg sqlcgen.InsertLinkParams) error
	DeleteNeighbours(ctx context.Context) error
	InsertNeighbour(ctx context.Context, arg sqlcgen.InsertNeighbourParams) error
	AddMapNode(ctx context.Context, arg sqlcgen.AddMapNodeParams) error
}

// Store runs the replace step atomically and serves the enrichment queries.
type Store interface {
	Replace(ctx context.Context, fn func(q Queries) error) error
	ListUnnamedRouters(ctx context.Context) ([]string, error)
	UpsertNodeName(ctx context.Context, arg sqlcgen.UpsertNodeNameParams) error
}

// NameSource reports name candidates for one router id.
type NameSource interface {
	Names(ctx context.Context, routerID string) ([]naming.Candidate, error)
}

// PoolStore is the Store backed by Postgres.
type PoolStore struct {
	Pool *db.Pool
}

func (s PoolStore) Replace(ctx context.Context, fn func(q Queries) error) error {
	return s.Pool.InTx(ctx, func(q *sqlcgen.Queries) error { return fn(q) })
}

func (s PoolStore) ListUnnamedRouters(ctx context.Context) ([]string, error) {
	return s.Pool.Queries().ListUnnamedRouters(ctx)
}

func (s PoolStore) UpsertNodeName(ctx context.Context, arg sqlcgen.UpsertNodeNameParams) error {
	return s.Pool.Queries().UpsertNodeName(ctx, arg)
}

type Options struct {
	// Map receives every router and network of the import.
	Map           string
	Workers       int
	LookupTimeout time.Duration
	Sources       []NameSource
}

type Importer struct {
	log           zerolog.Logger
	store         Store
	metrics       *metrics.Metrics
	mapName       string
	workers       int
	lookupTimeout time.Duration
	sources       []NameSource
}

type Result struct {
	Links      int
	Neighbours int
	Nodes      int
	Named      int
}

func New(log zerolog.Logger, store Store, opts Options, m *metrics.Metrics) *Importer {
	mapName := strings.TrimSpace(opts.Map)
	if mapName == "" {
		mapName = "main"
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	lookupTimeout := opts.LookupTimeout
	if lookupTimeout <= 0 {
		lookupTimeout = 2 * time.Second
	}
	return &Importer{
		log:           log,
		store:         store,
		metrics:       m,
		mapName:       mapName,
		workers:       workers,
		lookupTimeout: lookupTimeout,
		sources:       opts.Sources,
	}
}

// Run replaces links and neighbours with the contents of d in one transaction, then
// resolves names for routers that have none. Enrichment failures are logged, not returned.
func (im *Importer) Run(ctx context.Context, d ospf.Database) (Result, error) {
	start := time.Now()
	res, err := im.replace(ctx, d)
	im.metrics.ObserveImportRun(err, time.Since(start))
	if err != nil {
		im.log.Error().Err(err).Msg("import failed")
		return Result{}, err
	}

	if len(im.sources) > 0 {
		res.Named = im.enrich(ctx)
	}

	im.log.Info().
		Str("map", im.mapName).
		Int("links", res.Links).
		Int("neighbours", res.Neighbours).
		Int("nodes", res.Nodes).
		Int("named", res.Named).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("import finished")
	return res, nil
}

func (im *Importer) replace(ctx context.Context, d ospf.Database) (Result, error) {
	var res Result
	err := im.store.Replace(ctx, func(q Queries) error {
		m, err := q.EnsureMap(ctx, im.mapName)
		if err != nil {
			return fmt.Errorf("ensure map %q: %w", im.mapName, err)
		}

		if err := q.DeleteLinks(ctx); err != nil {
			return fmt.Errorf("delete links: %w", err)
		}
		for _, l := range d.Links {
			if err := q.InsertLink(ctx, sqlcgen.InsertLinkParams{Router: l.Router, Net: l.Net, Cost: l.Cost}); err != nil {
				return fmt.Errorf("insert link %s-%s: %w", l.Router, l.Net, err)
			}
		}

		if err := q.DeleteNeighbours(ctx); err != nil {
			return fmt.Errorf("delete neighbours: %w", err)
		}
		for _, n := range d.Neighbours {
			if err := q.InsertNeighbour(ctx, sqlcgen.InsertNeighbourParams{
				Node1ID: n.Router,
				Link1:   n.Interface,
				Node2ID: n.NeighbourRouter,
				Link2:   n.NeighbourInterface,
			}); err != nil {
				return fmt.Errorf("insert neighbour %s-%s: %w", n.Router, n.NeighbourRouter, err)
			}
		}

		nodes := append(d.Routers(), d.Nets()...)
		for _, id := range nodes {
			if err := q.AddMapNode(ctx, sqlcgen.AddMapNodeParams{MapID: m.ID, NodeID: id}); err != nil {
				return fmt.Errorf("add %s to map: %w", id, err)
			}
		}

		res = Result{Links: len(d.Links), Neighbours: len(d.Neighbours), Nodes: len(nodes)}
		return nil
	})
	return res, err
}

func (im *Importer) enrich(ctx context.Context) int {
	ids, err := im.store.ListUnnamedRouters(ctx)
	if err != nil {
		im.log.Warn().Err(err).Msg("list unnamed routers failed")
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	var named int32
	jobs := make(chan string)
	wg := sync.WaitGroup{}

	worker := func() {
		defer wg.Done()
		for id := range jobs {
			if ctx.Err() != nil {
				return
			}
			best, ok := naming.Best(im.candidates(ctx, id))
			if !ok {
				continue
			}
			if err := im.store.UpsertNodeName(ctx, sqlcgen.UpsertNodeNameParams{
				NodeID: id,
				Name:   best.Name,
				Source: best.Source,
			}); err != nil {
				im.log.Warn().Err(err).Str("router", id).Msg("store router name failed")
				continue
			}
			atomic.AddInt32(&named, 1)
			im.metrics.IncNameResolved(best.Source)
			im.log.Debug().Str("router", id).Str("name", best.Name).Str("source", best.Source).Msg("router named")
		}
	}

	workers := min(im.workers, len(ids))
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}

feed:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()

	return int(atomic.LoadInt32(&named))
}

func (im *Importer) candidates(ctx context.Context, id string) []naming.Candidate {
	var out []naming.Candidate
	for _, src := range im.sources {
		lookupCtx, cancel := context.WithTimeout(ctx, im.lookupTimeout)
		cands, err := src.Names(lookupCtx, id)
		cancel()
		if err != nil {
			im.log.Debug().Err(err).Str("router", id).Msg("name lookup failed")
			continue
		}
		out = append(out, cands...)
	}
	return out
}
