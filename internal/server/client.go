package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the AccountabilityVersions service over a gRPC connection
type Client struct {
	conn grpc.ClientConnInterface
	user string
}

// NewClient creates a client. A non-empty user is sent in the x-user header.
func NewClient(conn grpc.ClientConnInterface, user string) *Client {
	return &Client{conn: conn, user: user}
}

// Call invokes method with the given request fields
func (c *Client) Call(ctx context.Context, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	if c.user != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, UserHeader, c.user)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAccountability registers an accountability between two parties
func (c *Client) CreateAccountability(ctx context.Context, typ, parent, child string) (*structpb.Struct, error) {
	return c.Call(ctx, MethodCreateAccountability, map[string]interface{}{
		"type":   typ,
		"parent": parent,
		"child":  child,
	})
}

// InsertVersion records a state; an empty end date leaves the interval open
func (c *Client) InsertVersion(ctx context.Context, accountabilityID, beginDate, endDate string, erased bool, justification string) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"accountability_id": accountabilityID,
		"begin_date":        beginDate,
		"erased":            erased,
		"justification":     justification,
	}
	if endDate != "" {
		fields["end_date"] = endDate
	}
	return c.Call(ctx, MethodInsertVersion, fields)
}

// History lists a chain newest first
func (c *Client) History(ctx context.Context, accountabilityID string) (*structpb.Struct, error) {
	return c.Call(ctx, MethodListHistory, map[string]interface{}{"accountability_id": accountabilityID})
}

// DeleteVersion removes a head version
func (c *Client) DeleteVersion(ctx context.Context, versionID string) (*structpb.Struct, error) {
	return c.Call(ctx, MethodDeleteVersion, map[string]interface{}{"version_id": versionID})
}
