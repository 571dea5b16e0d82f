package collector

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/reporting"
	"github.com/danielpatrickdp/adlocal/go-engine/internal/state"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #endregion

// #region methods

// Collector RPC method names. Payloads are structpb Structs on both sides,
// so the client needs no generated stubs.
const (
	uploadMethod  = "/adlocal.v1.Collector/UploadReport"
	surveysMethod = "/adlocal.v1.Collector/DownloadSurveys"
)

// #endregion methods

// #region invoker

// Invoker is the one grpc.ClientConn method the client uses. Injected in
// tests to avoid a real connection.
type Invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// #endregion invoker

// #region client-struct

// Client talks to the collector service. It implements reporting.Transport.
type Client struct {
	conn   *grpc.ClientConn
	invoke Invoker
}

// NewClient connects to the collector gRPC endpoint.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, invoke: conn}, nil
}

// NewClientWithInvoker creates a Client with an injected invoker.
// Used for testing without a real gRPC connection.
func NewClientWithInvoker(inv Invoker) *Client {
	return &Client{invoke: inv}
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion client-struct

// #region upload

// UploadReport sends the full queue snapshot under the profile's AdUUID.
// An InvalidArgument status maps to reporting.ErrRejected so the scheduler
// advances past the rejected snapshot instead of retrying it.
func (c *Client) UploadReport(ctx context.Context, adUUID string, events []state.Event) (reporting.UploadAck, error) {
	eventMaps, err := toStructValues(events)
	if err != nil {
		return reporting.UploadAck{}, fmt.Errorf("encode report: %w", err)
	}
	req, err := structpb.NewStruct(map[string]any{
		"ad_uuid": adUUID,
		"events":  eventMaps,
	})
	if err != nil {
		return reporting.UploadAck{}, fmt.Errorf("encode report: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.invoke.Invoke(ctx, uploadMethod, req, resp); err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return reporting.UploadAck{}, fmt.Errorf("upload report: %v: %w", err, reporting.ErrRejected)
		}
		return reporting.UploadAck{}, fmt.Errorf("upload report: %w", err)
	}

	ack := reporting.UploadAck{
		AcceptedThrough: resp.Fields["accepted_through"].GetStringValue(),
	}
	if ack.AcceptedThrough == "" && len(events) > 0 {
		// Collectors that ack without a watermark accept the whole snapshot.
		ack.AcceptedThrough = events[len(events)-1].Stamp
	}
	return ack, nil
}

// #endregion upload

// #region surveys

// DownloadSurveys fetches survey definitions for the profile's locale.
func (c *Client) DownloadSurveys(ctx context.Context, locale string) ([]state.Survey, error) {
	req, err := structpb.NewStruct(map[string]any{"locale": locale})
	if err != nil {
		return nil, fmt.Errorf("encode survey request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.invoke.Invoke(ctx, surveysMethod, req, resp); err != nil {
		return nil, fmt.Errorf("download surveys: %w", err)
	}

	raw, err := json.Marshal(resp.AsMap()["surveys"])
	if err != nil {
		return nil, fmt.Errorf("decode surveys: %w", err)
	}
	var surveys []state.Survey
	if err := json.Unmarshal(raw, &surveys); err != nil {
		return nil, fmt.Errorf("decode surveys: %w", err)
	}
	return surveys, nil
}

// #endregion surveys

// #region helpers

// toStructValues round-trips events through JSON into the loosely typed
// values structpb accepts.
func toStructValues(events []state.Event) ([]any, error) {
	raw, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion helpers
