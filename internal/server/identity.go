package server

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/nainya/orgstore/pkg/chain"
)

// UserHeader is the metadata key carrying the acting user
const UserHeader = "x-user"

// MetadataIdentity resolves the acting user from incoming gRPC metadata,
// falling back to a user placed with chain.WithUser.
type MetadataIdentity struct{}

// CurrentUser implements chain.Identity
func (MetadataIdentity) CurrentUser(ctx context.Context) (string, bool) {
	if user := userFromMetadata(ctx); user != "" {
		return user, true
	}
	return chain.UserFromContext(ctx)
}

func userFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(UserHeader); len(values) > 0 {
		return values[0]
	}
	return ""
}
