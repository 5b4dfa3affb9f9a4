// Package requestdata carries the per-request session context: the verified user,
// the token that authenticated it and the monetary cost accumulated by upstream calls.
package requestdata

import (
	"context"
	"sync"
)

type requestDataKey struct{}

type RequestData struct {
	UserID    string
	TokenID   string
	MessageID string

	mu   sync.Mutex
	cost float64
}

func New(userID, tokenID string) *RequestData {
	return &RequestData{UserID: userID, TokenID: tokenID}
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// UserID returns the verified user id on ctx, or "".
func UserID(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.UserID
	}
	return ""
}

func (rd *RequestData) AddCost(amount float64) {
	if rd == nil || amount <= 0 {
		return
	}
	rd.mu.Lock()
	rd.cost += amount
	rd.mu.Unlock()
}

func (rd *RequestData) Cost() float64 {
	if rd == nil {
		return 0
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.cost
}

// TakeCost returns the accumulated cost and resets the accumulator.
func (rd *RequestData) TakeCost() float64 {
	if rd == nil {
		return 0
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	c := rd.cost
	rd.cost = 0
	return c
}
