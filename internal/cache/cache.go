package cache

import (
	"context"
	"time"
)

// BillViewCache holds rendered customer bill views keyed by read token or
// table. Values are opaque JSON documents.
type BillViewCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopBillViewCache struct{}

func (NoopBillViewCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopBillViewCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopBillViewCache) Delete(_ context.Context, _ ...string) error {
	return nil
}

func BillTokenKey(token string) string {
	return "barledger:bill-view:token:" + token
}

func BillTableKey(tableID string) string {
	return "barledger:bill-view:table:" + tableID
}
