package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/requestdata"
)

// userFrom returns the verified user id carried by ctx. Every user-scoped
// service call goes through it.
func userFrom(ctx context.Context) (string, error) {
	id := strings.TrimSpace(requestdata.UserID(ctx))
	if id == "" {
		return "", apierr.Unauthorized(apierr.CodeTokenMissing, fmt.Errorf("no authenticated user on request"))
	}
	return id, nil
}

// WithUser returns ctx carrying a fresh session context for userID.
func WithUser(ctx context.Context, userID, tokenID string) context.Context {
	return requestdata.WithRequestData(ctx, requestdata.New(userID, tokenID))
}
