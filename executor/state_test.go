package executor

import (
	"context"
	"fmt"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"sync"
	"testing"
	"time"
)

func TestClientIdManager_InMemory(t *testing.T) {
	ctx := context.Background()
	m := NewClientIdManager(nil)
	require.NoError(t, m.Load(ctx))

	id, err := m.GetClientOrderId(ctx, prefixEntry, "3f2a91c0-1111-4000-8000-000000000001")
	require.NoError(t, err)
	require.Equal(t, "qe-3f2a91c0-1", id)

	id, err = m.GetClientOrderId(ctx, prefixStopLoss, "abc")
	require.NoError(t, err)
	require.Equal(t, "qs-abc-2", id)

	require.NoError(t, m.Reset(ctx))
	id, err = m.GetClientOrderId(ctx, prefixTakeProfit, "abc")
	require.NoError(t, err)
	require.Equal(t, "qt-abc-1", id)
}

func TestClientIdManager_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewClientIdManager(nil)

	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := m.GetClientOrderId(ctx, prefixEntry, "t")
			require.NoError(t, err)
			lock.Lock()
			seen[id] = true
			lock.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, 20)
}

func TestClientIdManager_Persisted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017").SetServerSelectionTimeout(time.Second))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(context.Background()) }()
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("mongo not available: %s", err)
	}
	db := client.Database("qbracket_test")
	defer func() { _ = db.Drop(context.Background()) }()
	coll := db.Collection("state")

	m := NewClientIdManager(coll)
	require.NoError(t, m.Reset(ctx))
	for i := 1; i <= 5; i++ {
		id, err := m.GetClientOrderId(ctx, prefixEntry, "t")
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("qe-t-%d", i), id)
	}

	restarted := NewClientIdManager(coll)
	require.NoError(t, restarted.Load(ctx))
	id, err := restarted.GetClientOrderId(ctx, prefixEntry, "t")
	require.NoError(t, err)
	require.Equal(t, "qe-t-6", id)
}
