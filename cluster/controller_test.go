package cluster_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/firasghr/goantidetect/cluster"
	pb "github.com/firasghr/goantidetect/cluster/pb"
)

// startTestServer spins up a MasterControllerServer on a random localhost port
// and returns the address, the server instance, and a stop function.
func startTestServer(t *testing.T) (addr string, srv *cluster.MasterControllerServer, stop func()) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	grpcSrv := grpc.NewServer()
	srv = cluster.NewMasterControllerServer()
	pb.RegisterMasterControllerServer(grpcSrv, srv)

	go func() { _ = grpcSrv.Serve(lis) }()

	return lis.Addr().String(), srv, func() { grpcSrv.GracefulStop() }
}

// dialTestClient dials addr and returns a pb.MasterControllerClient.
func dialTestClient(t *testing.T, addr string) pb.MasterControllerClient {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return pb.NewMasterControllerClient(conn)
}

// ─── GlobalUniquenessSet unit tests ───────────────────────────────────────────

func TestGlobalUniquenessSet_StoreAndSnapshot(t *testing.T) {
	set := cluster.NewGlobalUniquenessSet()
	keys, ver := set.Snapshot()
	if len(keys) != 0 {
		t.Errorf("fresh set: expected 0 keys, got %d", len(keys))
	}
	if ver != 0 {
		t.Errorf("fresh set: expected version 0, got %d", ver)
	}

	set.Store([]*pb.UniquenessKey{
		{Kind: "fingerprint", Value: "abc123"},
	})

	keys, ver = set.Snapshot()
	if len(keys) != 1 {
		t.Errorf("after Store: expected 1 key, got %d", len(keys))
	}
	if ver != 1 {
		t.Errorf("after Store: expected version 1, got %d", ver)
	}
	if keys[0].Value != "abc123" {
		t.Errorf("key value: got %q, want abc123", keys[0].Value)
	}
}

func TestGlobalUniquenessSet_StoreIsIdempotentPerKindValue(t *testing.T) {
	set := cluster.NewGlobalUniquenessSet()
	set.Store([]*pb.UniquenessKey{{Kind: "egress", Value: "1.2.3.4:8080"}})
	set.Store([]*pb.UniquenessKey{{Kind: "egress", Value: "1.2.3.4:8080"}})

	keys, _ := set.Snapshot()
	if len(keys) != 1 {
		t.Errorf("expected 1 key after duplicate claim, got %d", len(keys))
	}
}

func TestGlobalUniquenessSet_Contains(t *testing.T) {
	set := cluster.NewGlobalUniquenessSet()
	if set.Contains("fingerprint", "xyz") {
		t.Error("fresh set should not contain anything")
	}
	set.Store([]*pb.UniquenessKey{{Kind: "fingerprint", Value: "xyz"}})
	if !set.Contains("fingerprint", "xyz") {
		t.Error("expected Contains to report the claimed key")
	}
	if set.Contains("egress", "xyz") {
		t.Error("Contains must be scoped by kind, not just value")
	}
}

// ─── gRPC BroadcastKeys ───────────────────────────────────────────────────────

func TestBroadcastKeys_Accepted(t *testing.T) {
	addr, _, stop := startTestServer(t)
	defer stop()
	c := dialTestClient(t, addr)

	resp, err := c.BroadcastKeys(context.Background(), &pb.BroadcastKeysRequest{
		PcId: "node-1",
		Keys: []*pb.UniquenessKey{{Kind: "fingerprint", Value: "test"}},
	})
	if err != nil {
		t.Fatalf("BroadcastKeys: %v", err)
	}
	if !resp.Accepted {
		t.Error("expected Accepted=true")
	}
}

func TestBroadcastKeys_EmptyKeysRejected(t *testing.T) {
	addr, _, stop := startTestServer(t)
	defer stop()
	c := dialTestClient(t, addr)

	_, err := c.BroadcastKeys(context.Background(), &pb.BroadcastKeysRequest{
		PcId: "node-1",
		Keys: nil,
	})
	if err == nil {
		t.Error("expected error for empty keys")
	}
}

// ─── gRPC UpdateStatus / GetAllStatus ─────────────────────────────────────────

func TestUpdateStatus_and_GetAllStatus(t *testing.T) {
	addr, _, stop := startTestServer(t)
	defer stop()
	c := dialTestClient(t, addr)

	_, err := c.UpdateStatus(context.Background(), &pb.UpdateStatusRequest{
		Status: &pb.SessionStatus{
			SessionId: "session-42",
			PcId:      "node-3",
			State:     "running",
		},
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	all, err := c.GetAllStatus(context.Background(), &pb.GetAllStatusRequest{})
	if err != nil {
		t.Fatalf("GetAllStatus: %v", err)
	}
	if len(all.Sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(all.Sessions))
	}
	s := all.Sessions[0]
	if s.SessionId != "session-42" || s.State != "running" || s.PcId != "node-3" {
		t.Errorf("unexpected session: %+v", s)
	}
}

// ─── gRPC GetAllKeys ───────────────────────────────────────────────────────────

func TestGetAllKeys_ReturnsSetSnapshot(t *testing.T) {
	addr, _, stop := startTestServer(t)
	defer stop()
	c := dialTestClient(t, addr)

	_, err := c.BroadcastKeys(context.Background(), &pb.BroadcastKeysRequest{
		PcId: "node-1",
		Keys: []*pb.UniquenessKey{{Kind: "fingerprint", Value: "tok"}},
	})
	if err != nil {
		t.Fatalf("BroadcastKeys: %v", err)
	}

	resp, err := c.GetAllKeys(context.Background(), &pb.GetAllKeysRequest{PcId: "node-2"})
	if err != nil {
		t.Fatalf("GetAllKeys: %v", err)
	}
	if len(resp.Keys) != 1 || resp.Keys[0].Value != "tok" {
		t.Errorf("unexpected keys: %v", resp.Keys)
	}
	if resp.Version < 1 {
		t.Errorf("expected version >= 1, got %d", resp.Version)
	}
}

// ─── gRPC WatchKeys streaming ──────────────────────────────────────────────────

func TestWatchKeys_ReceivesInitialSnapshot(t *testing.T) {
	addr, _, stop := startTestServer(t)
	defer stop()
	c := dialTestClient(t, addr)

	_, _ = c.BroadcastKeys(context.Background(), &pb.BroadcastKeysRequest{
		PcId: "node-1",
		Keys: []*pb.UniquenessKey{{Kind: "fingerprint", Value: "v0"}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := c.WatchKeys(ctx, &pb.WatchKeysRequest{PcId: "node-2"})
	if err != nil {
		t.Fatalf("WatchKeys: %v", err)
	}

	msg, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv initial snapshot: %v", err)
	}
	if len(msg.Keys) == 0 {
		t.Error("expected at least one key in initial snapshot")
	}
}

func TestWatchKeys_ReceivesBroadcastPush(t *testing.T) {
	addr, _, stop := startTestServer(t)
	defer stop()
	c := dialTestClient(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := c.WatchKeys(ctx, &pb.WatchKeysRequest{PcId: "node-5"})
	if err != nil {
		t.Fatalf("WatchKeys: %v", err)
	}

	if _, err := stream.Recv(); err != nil {
		t.Fatalf("Recv initial: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = c.BroadcastKeys(context.Background(), &pb.BroadcastKeysRequest{
			PcId: "node-1",
			Keys: []*pb.UniquenessKey{{Kind: "egress", Value: "pushed"}},
		})
	}()

	msg, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv push: %v", err)
	}
	found := false
	for _, k := range msg.Keys {
		if k.Value == "pushed" {
			found = true
		}
	}
	if !found {
		t.Errorf("pushed key not found in stream message: %v", msg.Keys)
	}
}

// ─── WorkerClient high-level API ──────────────────────────────────────────────

func TestWorkerClient_ClaimAndGetKeys(t *testing.T) {
	addr, _, stop := startTestServer(t)
	defer stop()

	w, err := cluster.NewWorkerClient("node-1", addr)
	if err != nil {
		t.Fatalf("NewWorkerClient: %v", err)
	}
	defer w.Close()

	if err := w.ClaimKeys(context.Background(), map[string]string{
		"fingerprint": "sentinel",
	}); err != nil {
		t.Fatalf("ClaimKeys: %v", err)
	}

	got, err := w.GetKeys(context.Background())
	if err != nil {
		t.Fatalf("GetKeys: %v", err)
	}
	if _, ok := got["fingerprint"]["sentinel"]; !ok {
		t.Errorf("expected claimed fingerprint key in snapshot, got %+v", got)
	}
}

func TestWorkerClient_ReportStatus(t *testing.T) {
	addr, _, stop := startTestServer(t)
	defer stop()

	w, err := cluster.NewWorkerClient("node-2", addr)
	if err != nil {
		t.Fatalf("NewWorkerClient: %v", err)
	}
	defer w.Close()

	if err := w.ReportStatus(context.Background(), "session-100", "running"); err != nil {
		t.Fatalf("ReportStatus: %v", err)
	}
}

func TestWorkerClient_WatchKeys(t *testing.T) {
	addr, _, stop := startTestServer(t)
	defer stop()

	w, err := cluster.NewWorkerClient("node-6", addr)
	if err != nil {
		t.Fatalf("NewWorkerClient: %v", err)
	}
	defer w.Close()

	received := make(chan map[string]map[string]struct{}, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := w.WatchKeys(ctx, func(m map[string]map[string]struct{}) {
		received <- m
	}); err != nil {
		t.Fatalf("WatchKeys: %v", err)
	}

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("did not receive initial snapshot within 1s")
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = w.ClaimKeys(context.Background(), map[string]string{"fingerprint": "watch_test"})
	}()

	select {
	case keys := <-received:
		if _, ok := keys["fingerprint"]["watch_test"]; !ok {
			t.Error("watch_test key not found in pushed update")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive broadcast push within 2s")
	}
}

// ─── bufconn in-memory integration test ──────────────────────────────────────

// startBufconnServer starts a MasterControllerServer on an in-memory bufconn
// listener (no OS port allocation) and returns a dial function for connecting
// clients and a cleanup function.
func startBufconnServer(t *testing.T) (dialFunc func(context.Context, string) (net.Conn, error), stop func()) {
	t.Helper()
	const bufSize = 1 << 20 // 1 MiB
	lis := bufconn.Listen(bufSize)

	grpcSrv := grpc.NewServer()
	pb.RegisterMasterControllerServer(grpcSrv, cluster.NewMasterControllerServer())
	go func() { _ = grpcSrv.Serve(lis) }()

	dialFn := func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
	stopFn := func() {
		grpcSrv.GracefulStop()
		_ = lis.Close()
	}
	return dialFn, stopFn
}

// dialBufconn creates a gRPC client connection through the in-memory bufconn.
func dialBufconn(t *testing.T, dialFn func(context.Context, string) (net.Conn, error)) pb.MasterControllerClient {
	t.Helper()
	conn, err := grpc.NewClient(
		"passthrough:///bufconn",
		grpc.WithContextDialer(dialFn),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dialBufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return pb.NewMasterControllerClient(conn)
}

// TestWatchKeys_BufconnBroadcast is an in-memory integration test for the
// master/worker gRPC setup. It uses bufconn to avoid real network port
// collisions. The test:
//
//  1. Starts the MasterControllerServer on an in-memory bufconn listener.
//  2. Opens two raw pb.MasterControllerClient connections via dialBufconn
//     (node-bw1, node-bw2).
//  3. Worker 2 opens a WatchKeys stream and consumes its initial snapshot.
//  4. Worker 1 broadcasts a claimed fingerprint key.
//  5. Asserts Worker 2 receives the exact key within 50 milliseconds.
//
// Synchronisation is achieved with channels and a sync.WaitGroup; no
// time.Sleep is used.
func TestWatchKeys_BufconnBroadcast(t *testing.T) {
	dialFn, stop := startBufconnServer(t)
	t.Cleanup(stop)

	worker1 := dialBufconn(t, dialFn)
	worker2 := dialBufconn(t, dialFn)

	// Worker 2 opens a WatchKeys stream with a generous parent deadline so the
	// test is not flaky on a loaded CI machine.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	stream, err := worker2.WatchKeys(ctx, &pb.WatchKeysRequest{PcId: "node-bw2"})
	if err != nil {
		t.Fatalf("WatchKeys: %v", err)
	}

	// Buffered channel drains the stream in a background goroutine.
	// Size 8 is large enough that the goroutine never blocks in this test.
	received := make(chan *pb.GetAllKeysResponse, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			msg, err := stream.Recv()
			if err != nil {
				return // context cancelled or stream closed
			}
			received <- msg
		}
	}()

	// Wait for the initial snapshot (may be empty – just proves the stream is live).
	// bufconn is in-memory so 200ms is ample even on a loaded CI machine.
	select {
	case <-received:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for initial WatchKeys snapshot")
	}

	// Worker 1 broadcasts a claimed fingerprint key. The subscription is
	// guaranteed to be active because we already received the initial
	// snapshot, which is sent only after the subscriber is registered.
	_, err = worker1.BroadcastKeys(ctx, &pb.BroadcastKeysRequest{
		PcId: "node-bw1",
		Keys: []*pb.UniquenessKey{{Kind: "fingerprint", Value: "bufconn-sentinel"}},
	})
	if err != nil {
		t.Fatalf("BroadcastKeys: %v", err)
	}

	// Worker 2 must receive the pushed key within 50 ms.
	// bufconn has zero network latency so this deadline is generous.
	select {
	case msg := <-received:
		found := false
		for _, k := range msg.Keys {
			if k.Kind == "fingerprint" && k.Value == "bufconn-sentinel" {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("fingerprint=bufconn-sentinel not found in Worker 2's stream message: %v", msg.Keys)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("Worker 2 did not receive fingerprint key within 50ms")
	}

	cancel()  // terminate the stream
	wg.Wait() // wait for the drainer goroutine to exit
}
