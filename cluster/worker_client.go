// Package cluster – gRPC Worker Client.
//
// WorkerClient wraps the pb.MasterControllerClient with a higher-level API
// tailored to goantidetect nodes:
//
//   - ReportStatus   — one-shot call to report a session lifecycle change.
//   - ClaimKeys      — one-shot call to upload freshly claimed uniqueness
//     keys (fingerprint hash, egress address, storage seed, ...).
//   - GetKeys        — fetch the current Global Uniqueness Set snapshot.
//   - WatchKeys      — start a background goroutine that streams uniqueness
//     set updates from the master and calls a handler function on each one.
//
// A node creates one WorkerClient pointing at the master's gRPC address.
// session.Manager does not call it: each Manager's uniqueness tracking stays
// local to its process, and sharing keys between nodes is left to code that
// calls ClaimKeys/WatchKeys itself.
package cluster

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/firasghr/goantidetect/cluster/pb"
)

// WorkerClient is the client-side façade for the MasterController gRPC
// service. It is safe for concurrent use by many goroutines.
type WorkerClient struct {
	pcID   string
	conn   *grpc.ClientConn
	client pb.MasterControllerClient
}

// NewWorkerClient dials the master at addr and returns a ready WorkerClient.
// pcID identifies this node (e.g. "node-1", "node-2", …).
//
// The connection uses plain-text gRPC (no TLS) which is appropriate for a
// trusted LAN. For internet-facing deployments replace insecure.NewCredentials
// with tls.NewClientTLSFromFile or similar.
func NewWorkerClient(pcID, addr string, opts ...grpc.DialOption) (*WorkerClient, error) {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	opts = append(defaults, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("worker client: dial %s: %w", addr, err)
	}
	return &WorkerClient{
		pcID:   pcID,
		conn:   conn,
		client: pb.NewMasterControllerClient(conn),
	}, nil
}

// Close tears down the underlying gRPC connection.
func (w *WorkerClient) Close() error {
	return w.conn.Close()
}

// ReportStatus tells the master about a session lifecycle transition.
// state is one of "idle", "running", "closed".
func (w *WorkerClient) ReportStatus(ctx context.Context, sessionID, state string) error {
	_, err := w.client.UpdateStatus(ctx, &pb.UpdateStatusRequest{
		Status: &pb.SessionStatus{
			SessionId: sessionID,
			PcId:      w.pcID,
			State:     state,
		},
	})
	if err != nil {
		return fmt.Errorf("worker client: report status session %s: %w", sessionID, err)
	}
	return nil
}

// ClaimKeys uploads uniqueness keys this node just minted for a new session
// (fingerprint hash, egress address, storage seed, ...). The master persists
// them in the Global Uniqueness Set and pushes them to all subscribed nodes
// so no other node generates a colliding combination.
func (w *WorkerClient) ClaimKeys(ctx context.Context, keys map[string]string) error {
	pbKeys := make([]*pb.UniquenessKey, 0, len(keys))
	for kind, value := range keys {
		pbKeys = append(pbKeys, &pb.UniquenessKey{Kind: kind, Value: value})
	}

	resp, err := w.client.BroadcastKeys(ctx, &pb.BroadcastKeysRequest{
		PcId: w.pcID,
		Keys: pbKeys,
	})
	if err != nil {
		return fmt.Errorf("worker client: claim keys: %w", err)
	}
	if !resp.Accepted {
		return fmt.Errorf("worker client: claim keys: master rejected")
	}
	return nil
}

// GetKeys fetches a snapshot of the Global Uniqueness Set from the master,
// grouped by kind for convenient membership checks against a freshly
// generated fingerprint or egress address.
func (w *WorkerClient) GetKeys(ctx context.Context) (map[string]map[string]struct{}, error) {
	resp, err := w.client.GetAllKeys(ctx, &pb.GetAllKeysRequest{PcId: w.pcID})
	if err != nil {
		return nil, fmt.Errorf("worker client: get keys: %w", err)
	}
	return groupKeys(resp.Keys), nil
}

// WatchKeys opens a streaming subscription and calls onUpdate every time the
// master pushes a fresh Global Uniqueness Set snapshot. The goroutine exits
// when ctx is cancelled or the stream encounters a non-recoverable error.
//
// This is the primary mechanism by which nodes learn about uniqueness claims
// made elsewhere in the cluster: node A claims a fingerprint → master pushes
// to all subscribers → every other node sees it in onUpdate within one
// network round-trip, before it ever tries to mint the same one.
//
// onUpdate is called from the background goroutine; if it blocks it will
// delay receipt of subsequent updates.
func (w *WorkerClient) WatchKeys(ctx context.Context, onUpdate func(map[string]map[string]struct{})) error {
	stream, err := w.client.WatchKeys(ctx, &pb.WatchKeysRequest{PcId: w.pcID})
	if err != nil {
		return fmt.Errorf("worker client: open watch stream: %w", err)
	}

	go func() {
		for {
			resp, err := stream.Recv()
			if err != nil {
				return // context cancelled or server closed stream
			}
			onUpdate(groupKeys(resp.Keys))
		}
	}()
	return nil
}

// groupKeys buckets a flat key list by Kind so callers can do
// `set["fingerprint"][hash]` membership checks without re-scanning the slice.
func groupKeys(keys []*pb.UniquenessKey) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	for _, k := range keys {
		bucket, ok := out[k.Kind]
		if !ok {
			bucket = make(map[string]struct{})
			out[k.Kind] = bucket
		}
		bucket[k.Value] = struct{}{}
	}
	return out
}
