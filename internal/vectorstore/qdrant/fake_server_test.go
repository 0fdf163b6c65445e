package qdrant

import (
	"context"
	"errors"
	"math"
	"net"
	"sort"
	"sync"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type fakeCollection struct {
	config *qdrant.VectorsConfig
	ids    []string
	points map[string]*qdrant.PointStruct
}

// fakeQdrant holds the state behind the handful of collection and point
// RPCs the backend uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
}

type fakeHealth struct {
	qdrant.UnimplementedQdrantServer
}

type fakeCollections struct {
	qdrant.UnimplementedCollectionsServer
	*fakeQdrant
}

type fakePoints struct {
	qdrant.UnimplementedPointsServer
	*fakeQdrant
}

func (fakeHealth) HealthCheck(context.Context, *qdrant.HealthCheckRequest) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{Title: "qdrant - fake", Version: "1.16.0"}, nil
}

func (f fakeCollections) CollectionExists(_ context.Context, req *qdrant.CollectionExistsRequest) (*qdrant.CollectionExistsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[req.GetCollectionName()]
	return &qdrant.CollectionExistsResponse{Result: &qdrant.CollectionExists{Exists: ok}}, nil
}

func (f fakeCollections) Create(_ context.Context, req *qdrant.CreateCollection) (*qdrant.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[req.GetCollectionName()] = &fakeCollection{
		config: req.GetVectorsConfig(),
		points: map[string]*qdrant.PointStruct{},
	}
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

func (f fakeCollections) Delete(_ context.Context, req *qdrant.DeleteCollection) (*qdrant.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, req.GetCollectionName())
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

func (f fakeCollections) Get(_ context.Context, req *qdrant.GetCollectionInfoRequest) (*qdrant.GetCollectionInfoResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[req.GetCollectionName()]
	if !ok {
		return nil, errors.New("collection not found")
	}
	return &qdrant.GetCollectionInfoResponse{Result: &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{Params: &qdrant.CollectionParams{VectorsConfig: c.config}},
	}}, nil
}

func (f fakePoints) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collections[req.GetCollectionName()]
	for _, p := range req.GetPoints() {
		id := p.GetId().GetUuid()
		if _, seen := c.points[id]; !seen {
			c.ids = append(c.ids, id)
		}
		c.points[id] = p
	}
	return &qdrant.PointsOperationResponse{Result: &qdrant.UpdateResult{Status: qdrant.UpdateStatus_Completed}}, nil
}

func (f fakePoints) Count(_ context.Context, req *qdrant.CountPoints) (*qdrant.CountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &qdrant.CountResponse{Result: &qdrant.CountResult{Count: uint64(len(f.collections[req.GetCollectionName()].points))}}, nil
}

func (f fakePoints) Scroll(_ context.Context, req *qdrant.ScrollPoints) (*qdrant.ScrollResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collections[req.GetCollectionName()]
	var out []*qdrant.RetrievedPoint
	for _, id := range c.ids {
		if uint32(len(out)) >= req.GetLimit() {
			break
		}
		p := c.points[id]
		out = append(out, &qdrant.RetrievedPoint{Id: p.GetId(), Payload: p.GetPayload()})
	}
	return &qdrant.ScrollResponse{Result: out}, nil
}

func (f fakePoints) Query(_ context.Context, req *qdrant.QueryPoints) (*qdrant.QueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collections[req.GetCollectionName()]
	query := req.GetQuery().GetNearest().GetDense().GetData()
	out := make([]*qdrant.ScoredPoint, 0, len(c.ids))
	for _, id := range c.ids {
		p := c.points[id]
		out = append(out, &qdrant.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: cosine(query, vectorOf(p))})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GetScore() > out[j].GetScore() })
	if limit := int(req.GetLimit()); limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return &qdrant.QueryResponse{Result: out}, nil
}

func vectorOf(p *qdrant.PointStruct) []float32 {
	v := p.GetVectors().GetVector()
	if data := v.GetData(); len(data) > 0 {
		return data
	}
	return v.GetDense().GetData()
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// startFake serves a fakeQdrant on a loopback port and returns a backend
// connected to it.
func startFake(t *testing.T, cfg Config) (*Backend, *fakeQdrant) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fake := &fakeQdrant{collections: map[string]*fakeCollection{}}
	srv := grpc.NewServer()
	qdrant.RegisterQdrantServer(srv, fakeHealth{})
	qdrant.RegisterCollectionsServer(srv, fakeCollections{fakeQdrant: fake})
	qdrant.RegisterPointsServer(srv, fakePoints{fakeQdrant: fake})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cfg.Host = "127.0.0.1"
	cfg.Port = lis.Addr().(*net.TCPAddr).Port
	b, err := NewBackend(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, fake
}
