package importer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"netmap/internal/naming"
	"netmap/internal/ospf"
	"netmap/internal/sqlcgen"
)

type fakeQueries struct {
	links      []sqlcgen.InsertLinkParams
	neighbours []sqlcgen.InsertNeighbourParams
	mapNodes   []sqlcgen.AddMapNodeParams
	deleted    []string

	insertLinkFn func(ctx context.Context, arg sqlcgen.InsertLinkParams) error
}

func (f *fakeQueries) EnsureMap(ctx context.Context, name string) (sqlcgen.Map, error) {
	return sqlcgen.Map{ID: 7, Name: name}, nil
}

func (f *fakeQueries) DeleteLinks(ctx context.Context) error {
	f.deleted = append(f.deleted, "links")
	return nil
}

func (f *fakeQueries) InsertLink(ctx context.Context, arg sqlcgen.InsertLinkParams) error {
	if f.insertLinkFn != nil {
		if err := f.insertLinkFn(ctx, arg); err != nil {
			return err
		}
	}
	f.links = append(f.links, arg)
	return nil
}

func (f *fakeQueries) DeleteNeighbours(ctx context.Context) error {
	f.deleted = append(f.deleted, "neigh")
	return nil
}

func (f *fakeQueries) InsertNeighbour(ctx context.Context, arg sqlcgen.InsertNeighbourParams) error {
	f.neighbours = append(f.neighbours, arg)
	return nil
}

func (f *fakeQueries) AddMapNode(ctx context.Context, arg sqlcgen.AddMapNodeParams) error {
	f.mapNodes = append(f.mapNodes, arg)
	return nil
}

// fakeStore commits the transaction's writes only when fn succeeds.
type fakeStore struct {
	mu        sync.Mutex
	committed *fakeQueries
	tx        func() *fakeQueries
	unnamed   []string
	listErr   error
	names     map[string]sqlcgen.UpsertNodeNameParams
}

func (s *fakeStore) Replace(ctx context.Context, fn func(q Queries) error) error {
	q := &fakeQueries{}
	if s.tx != nil {
		q = s.tx()
	}
	if err := fn(q); err != nil {
		return err
	}
	s.committed = q
	return nil
}

func (s *fakeStore) ListUnnamedRouters(ctx context.Context) ([]string, error) {
	return s.unnamed, s.listErr
}

func (s *fakeStore) UpsertNodeName(ctx context.Context, arg sqlcgen.UpsertNodeNameParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names == nil {
		s.names = make(map[string]sqlcgen.UpsertNodeNameParams)
	}
	s.names[arg.NodeID] = arg
	return nil
}

type fakeSource struct {
	namesFn func(ctx context.Context, routerID string) ([]naming.Candidate, error)
}

func (f fakeSource) Names(ctx context.Context, routerID string) ([]naming.Candidate, error) {
	return f.namesFn(ctx, routerID)
}

func sampleDatabase() ospf.Database {
	return ospf.Database{
		Links: []ospf.Link{
			{Router: "10.0.0.1", Net: "2001:db8:1::/64", Cost: 10},
			{Router: "10.0.0.2", Net: "2001:db8:1::/64", Cost: 10},
		},
		Neighbours: []ospf.Neighbour{
			{Router: "10.0.0.1", Interface: "5", NeighbourRouter: "10.0.0.2", NeighbourInterface: "6"},
		},
	}
}

func TestRun_ReplacesTopology(t *testing.T) {
	store := &fakeStore{}
	im := New(zerolog.Nop(), store, Options{Map: "lab"}, nil)

	res, err := im.Run(context.Background(), sampleDatabase())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(Result{Links: 2, Neighbours: 1, Nodes: 3}, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}

	q := store.committed
	if q == nil {
		t.Fatalf("expected transaction to commit")
	}
	if diff := cmp.Diff([]string{"links", "neigh"}, q.deleted); diff != "" {
		t.Fatalf("expected old rows deleted first (-want +got):\n%s", diff)
	}
	wantNeigh := []sqlcgen.InsertNeighbourParams{{Node1ID: "10.0.0.1", Link1: "5", Node2ID: "10.0.0.2", Link2: "6"}}
	if diff := cmp.Diff(wantNeigh, q.neighbours); diff != "" {
		t.Fatalf("neighbours mismatch (-want +got):\n%s", diff)
	}
	wantNodes := []sqlcgen.AddMapNodeParams{
		{MapID: 7, NodeID: "10.0.0.1"},
		{MapID: 7, NodeID: "10.0.0.2"},
		{MapID: 7, NodeID: "2001:db8:1::/64"},
	}
	if diff := cmp.Diff(wantNodes, q.mapNodes); diff != "" {
		t.Fatalf("map nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_FailureCommitsNothing(t *testing.T) {
	store := &fakeStore{tx: func() *fakeQueries {
		return &fakeQueries{insertLinkFn: func(ctx context.Context, arg sqlcgen.InsertLinkParams) error {
			if arg.Router == "10.0.0.2" {
				return errors.New("disk full")
			}
			return nil
		}}
	}}
	im := New(zerolog.Nop(), store, Options{}, nil)

	if _, err := im.Run(context.Background(), sampleDatabase()); err == nil {
		t.Fatalf("expected error")
	}
	if store.committed != nil {
		t.Fatalf("expected nothing committed")
	}
}

func TestRun_NamesUnnamedRouters(t *testing.T) {
	store := &fakeStore{unnamed: []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}}
	snmpSource := fakeSource{namesFn: func(ctx context.Context, id string) ([]naming.Candidate, error) {
		if id == "10.0.0.2" {
			return nil, errors.New("timeout")
		}
		return []naming.Candidate{{Name: "rtr-" + id[len(id)-1:], Source: naming.SourceSNMP}}, nil
	}}
	dnsSource := fakeSource{namesFn: func(ctx context.Context, id string) ([]naming.Candidate, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("expected lookup deadline")
		}
		switch id {
		case "10.0.0.2":
			return []naming.Candidate{{Name: "edge2.example.net", Source: naming.SourceReverseDNS}}, nil
		case "10.0.0.3":
			return []naming.Candidate{{Name: "3.0.0.10.in-addr.arpa", Source: naming.SourceReverseDNS}}, nil
		}
		return nil, nil
	}}

	im := New(zerolog.Nop(), store, Options{Workers: 2, LookupTimeout: time.Second, Sources: []NameSource{snmpSource, dnsSource}}, nil)
	res, err := im.Run(context.Background(), sampleDatabase())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Named != 3 {
		t.Fatalf("expected 3 routers named, got %d", res.Named)
	}

	var got []sqlcgen.UpsertNodeNameParams
	for _, v := range store.names {
		got = append(got, v)
	}
	sort.Slice(got, func(i, j int) bool { return got[i].NodeID < got[j].NodeID })
	want := []sqlcgen.UpsertNodeNameParams{
		{NodeID: "10.0.0.1", Name: "rtr-1", Source: naming.SourceSNMP},
		{NodeID: "10.0.0.2", Name: "edge2", Source: naming.SourceReverseDNS},
		{NodeID: "10.0.0.3", Name: "rtr-3", Source: naming.SourceSNMP},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_EnrichmentErrorsDoNotFailImport(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db gone")}
	src := fakeSource{namesFn: func(ctx context.Context, id string) ([]naming.Candidate, error) {
		t.Fatalf("no lookups expected")
		return nil, nil
	}}
	im := New(zerolog.Nop(), store, Options{Sources: []NameSource{src}}, nil)
	res, err := im.Run(context.Background(), sampleDatabase())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Named != 0 {
		t.Fatalf("expected no names, got %d", res.Named)
	}
}

func TestNew_Defaults(t *testing.T) {
	im := New(zerolog.Nop(), &fakeStore{}, Options{}, nil)
	if im.mapName != "main" || im.workers != 8 || im.lookupTimeout != 2*time.Second {
		t.Fatalf("unexpected defaults %+v", im)
	}
}
