// Package cluster – gRPC Master Controller for optional multi-node mode.
//
// MasterControllerServer is the authoritative coordinator when goantidetect
// runs its batch executor across several machines instead of one. It runs as
// a single gRPC server process (typically alongside the dashboard) and
// exposes five RPCs:
//
//   - BroadcastKeys   — a node that minted a new fingerprint/egress/storage
//     combination uploads the uniqueness keys it claimed; the server adds
//     them to the Global Uniqueness Set and fans the update out to every
//     active WatchKeys subscriber instantly, so no two nodes ever hand out
//     the same combination.
//   - UpdateStatus    — nodes report session lifecycle transitions ("idle" →
//     "running" → "closed").
//   - GetAllKeys      — returns a point-in-time snapshot of the set.
//   - WatchKeys       — server-streaming RPC; subscribers receive a push
//     every time BroadcastKeys adds new keys.
//   - GetAllStatus    — returns a snapshot of every tracked session.
//
// Thread-safety:
//   - The Global Uniqueness Set is guarded by a sync.RWMutex; reads never
//     block each other so many nodes polling it concurrently is safe.
//   - Session state is stored in a sync.Map, eliminating map-lock contention
//     across thousands of goroutines.
//   - Subscriber list is guarded by a separate sync.Mutex; it is only accessed
//     on BroadcastKeys (write) and WatchKeys (connect/disconnect), both of
//     which are infrequent relative to UpdateStatus.
package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/firasghr/goantidetect/cluster/pb"
)

// ─── Global Uniqueness Set ───────────────────────────────────────────────────

// keyEntry is one claimed uniqueness key, tracked with the time it was
// claimed so stale entries could later be aged out (not currently done; the
// set only grows for the lifetime of a batch run).
type keyEntry struct {
	Key      *pb.UniquenessKey
	ClaimedAt time.Time
}

// entryID uniquely identifies a key by (kind, value) so a second claim of the
// same pair is idempotent rather than duplicated.
func entryID(k *pb.UniquenessKey) string { return k.Kind + "\x00" + k.Value }

// GlobalUniquenessSet is a thread-safe store of uniqueness keys claimed by
// any node in the cluster. It is the network-wide counterpart to
// session.Manager's in-process uniqueness tracking: a single process only
// needs to avoid colliding with itself, but a cluster of processes must avoid
// colliding with each other too.
type GlobalUniquenessSet struct {
	mu      sync.RWMutex
	entries map[string]keyEntry
	version atomic.Int64
}

// NewGlobalUniquenessSet creates an empty set.
func NewGlobalUniquenessSet() *GlobalUniquenessSet {
	return &GlobalUniquenessSet{entries: make(map[string]keyEntry)}
}

// Store adds newly claimed keys to the set, increments the set version, and
// returns the new version number.
func (g *GlobalUniquenessSet) Store(keys []*pb.UniquenessKey) int64 {
	g.mu.Lock()
	for _, k := range keys {
		g.entries[entryID(k)] = keyEntry{Key: k, ClaimedAt: time.Now()}
	}
	g.mu.Unlock()
	return g.version.Add(1)
}

// Contains reports whether a key with the given kind and value has already
// been claimed anywhere in the cluster.
func (g *GlobalUniquenessSet) Contains(kind, value string) bool {
	g.mu.RLock()
	_, ok := g.entries[entryID(&pb.UniquenessKey{Kind: kind, Value: value})]
	g.mu.RUnlock()
	return ok
}

// Snapshot returns a copy of all claimed keys and the current version
// atomically.
func (g *GlobalUniquenessSet) Snapshot() ([]*pb.UniquenessKey, int64) {
	g.mu.RLock()
	out := make([]*pb.UniquenessKey, 0, len(g.entries))
	for _, e := range g.entries {
		out = append(out, e.Key)
	}
	ver := g.version.Load()
	g.mu.RUnlock()
	return out, ver
}

// ─── Subscriber management ───────────────────────────────────────────────────

// subscriber is an active WatchKeys stream.
type subscriber struct {
	pcID string
	ch   chan *pb.GetAllKeysResponse
}

// ─── MasterControllerServer ──────────────────────────────────────────────────

// MasterControllerServer implements pb.MasterControllerServer and acts as the
// cluster-wide uniqueness coordinator.
type MasterControllerServer struct {
	pb.UnimplementedMasterControllerServer

	set *GlobalUniquenessSet

	// sessions stores *pb.SessionStatus values keyed by session_id.
	sessions sync.Map

	// subscribers holds active WatchKeys streams.
	subMu sync.Mutex
	subs  map[string]*subscriber // keyed by pcID
}

// NewMasterControllerServer creates a ready-to-use server.
func NewMasterControllerServer() *MasterControllerServer {
	return &MasterControllerServer{
		set:  NewGlobalUniquenessSet(),
		subs: make(map[string]*subscriber),
	}
}

// BroadcastKeys stores newly claimed uniqueness keys and pushes them to every
// active WatchKeys subscriber.
func (s *MasterControllerServer) BroadcastKeys(
	_ context.Context, req *pb.BroadcastKeysRequest,
) (*pb.BroadcastKeysResponse, error) {
	if len(req.Keys) == 0 {
		return nil, status.Error(codes.InvalidArgument, "keys must not be empty")
	}

	ver := s.set.Store(req.Keys)
	keys, _ := s.set.Snapshot()
	resp := &pb.GetAllKeysResponse{Keys: keys, Version: ver}

	s.subMu.Lock()
	for _, sub := range s.subs {
		select {
		case sub.ch <- resp:
		default:
			// Subscriber is slow; drop rather than block BroadcastKeys.
		}
	}
	s.subMu.Unlock()

	return &pb.BroadcastKeysResponse{Accepted: true}, nil
}

// UpdateStatus records the latest lifecycle state for a session.
func (s *MasterControllerServer) UpdateStatus(
	_ context.Context, req *pb.UpdateStatusRequest,
) (*pb.UpdateStatusResponse, error) {
	if req.Status == nil {
		return nil, status.Error(codes.InvalidArgument, "status must not be nil")
	}
	req.Status.UpdatedUnix = time.Now().Unix()
	s.sessions.Store(req.Status.SessionId, req.Status)
	return &pb.UpdateStatusResponse{Ok: true}, nil
}

// GetAllKeys returns a snapshot of the current Global Uniqueness Set.
func (s *MasterControllerServer) GetAllKeys(
	_ context.Context, _ *pb.GetAllKeysRequest,
) (*pb.GetAllKeysResponse, error) {
	keys, ver := s.set.Snapshot()
	return &pb.GetAllKeysResponse{Keys: keys, Version: ver}, nil
}

// WatchKeys subscribes the caller to Global Uniqueness Set updates. The
// stream remains open until the client disconnects or the context is
// cancelled. A snapshot of the current set is sent immediately so the
// subscriber is up-to-date before the first BroadcastKeys event arrives.
func (s *MasterControllerServer) WatchKeys(
	req *pb.WatchKeysRequest,
	stream pb.MasterController_WatchKeysServer,
) error {
	if req.PcId == "" {
		return status.Error(codes.InvalidArgument, "pc_id must not be empty")
	}

	ch := make(chan *pb.GetAllKeysResponse, 32)
	sub := &subscriber{pcID: req.PcId, ch: ch}

	s.subMu.Lock()
	s.subs[req.PcId] = sub
	s.subMu.Unlock()

	defer func() {
		s.subMu.Lock()
		delete(s.subs, req.PcId)
		s.subMu.Unlock()
	}()

	// Send the current snapshot immediately.
	keys, ver := s.set.Snapshot()
	if err := stream.Send(&pb.GetAllKeysResponse{Keys: keys, Version: ver}); err != nil {
		return fmt.Errorf("watch keys: send initial snapshot: %w", err)
	}

	// Forward updates until the client disconnects.
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-ch:
			if err := stream.Send(update); err != nil {
				return fmt.Errorf("watch keys: send update: %w", err)
			}
		}
	}
}

// GetAllStatus returns a point-in-time snapshot of every tracked session.
func (s *MasterControllerServer) GetAllStatus(
	_ context.Context, _ *pb.GetAllStatusRequest,
) (*pb.GetAllStatusResponse, error) {
	var sessions []*pb.SessionStatus
	s.sessions.Range(func(_, v any) bool {
		if st, ok := v.(*pb.SessionStatus); ok {
			sessions = append(sessions, st)
		}
		return true
	})
	return &pb.GetAllStatusResponse{Sessions: sessions}, nil
}

// Set exposes the underlying GlobalUniquenessSet for in-process consumers
// (e.g. tests and monitoring handlers).
func (s *MasterControllerServer) Set() *GlobalUniquenessSet { return s.set }

// ─── Server lifecycle ─────────────────────────────────────────────────────────

// ListenAndServe starts the gRPC server on addr (e.g. ":50051") and blocks
// until the provided context is cancelled. It closes the listener on return.
func ListenAndServe(ctx context.Context, addr string, opts ...grpc.ServerOption) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cluster: listen %s: %w", addr, err)
	}

	srv := grpc.NewServer(opts...)
	pb.RegisterMasterControllerServer(srv, NewMasterControllerServer())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		return fmt.Errorf("cluster: serve: %w", err)
	}
}
