package executor

import (
	"context"
	"fmt"
	"github.com/pkg/errors"
	"github.com/xyths/hs"
	"go.mongodb.org/mongo-driver/mongo"
	"sync"
)

const (
	keyUnique    = "uniqueId"
	uniqueModulo = 100000
)

// ClientIdManager hands out client order ids. The counter survives restarts when a state collection is set.
type ClientIdManager struct {
	sep    string
	lock   sync.Mutex
	unique int64
	coll   *mongo.Collection
}

// NewClientIdManager returns a manager using the executor's id layout. coll may be nil.
func NewClientIdManager(coll *mongo.Collection) *ClientIdManager {
	m := &ClientIdManager{}
	m.Init(sep, coll)
	return m
}

func (m *ClientIdManager) Init(sep string, coll *mongo.Collection) {
	m.sep = sep
	m.coll = coll
}

func (m *ClientIdManager) Load(ctx context.Context) (err error) {
	if m.coll == nil {
		return nil
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.unique, err = hs.LoadInt64(ctx, m.coll, keyUnique)
	if err == mongo.ErrNoDocuments {
		err = nil
	}
	return
}

func (m *ClientIdManager) Reset(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.unique = 0
	if m.coll == nil {
		return nil
	}
	return hs.DeleteInt64(ctx, m.coll, keyUnique)
}

// GetClientOrderId returns prefix-trade-unique, for example "qe-3f2a91c0-42".
func (m *ClientIdManager) GetClientOrderId(ctx context.Context, prefix, tradeId string) (string, error) {
	unique, err := m.getUniqueId(ctx)
	if err != nil {
		return "", err
	}
	short := tradeId
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%[2]s%[1]s%[3]s%[1]s%[4]d", m.sep, prefix, short, unique), nil
}

func (m *ClientIdManager) getUniqueId(ctx context.Context) (int64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.unique = (m.unique + 1) % uniqueModulo
	if m.coll == nil {
		return m.unique, nil
	}
	if err := hs.SaveInt64(ctx, m.coll, keyUnique, m.unique); err != nil {
		return 0, errors.Wrap(err, "save uniqueId")
	}
	return m.unique, nil
}
