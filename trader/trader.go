// Package trader wires the executor to a venue, mongo, robots and metrics, and runs it.
package trader

import (
	"context"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/hs"
	"github.com/xyths/hs/broadcast"
	"github.com/xyths/qbracket/exchange"
	"github.com/xyths/qbracket/exchange/binance"
	"github.com/xyths/qbracket/exchange/paper"
	"github.com/xyths/qbracket/executor"
	"github.com/xyths/qbracket/journal"
	"github.com/xyths/qbracket/metrics"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"net/http"
	"sync"
)

const (
	collNameState = "state"
	hostTestnet   = "testnet"
)

type Trader struct {
	config Config
	opts   executor.Options
	dry    bool

	Sugar    *zap.SugaredLogger
	db       *mongo.Database
	ex       exchange.Client
	paper    *paper.Exchange
	executor *executor.Executor
	journal  *journal.Journal
	ids      *executor.ClientIdManager
	robots   []broadcast.Broadcaster

	server *http.Server
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates the strategy section. dry selects the simulated venue whatever the exchange name is.
func New(cfg Config, dry bool) (*Trader, error) {
	opts, err := cfg.Strategy.Parse()
	if err != nil {
		return nil, errors.Wrap(err, "strategy config")
	}
	return &Trader{
		config: cfg,
		opts:   opts,
		dry:    dry,
	}, nil
}

func (t *Trader) Init(ctx context.Context) error {
	if err := t.initLogger(); err != nil {
		return err
	}
	if err := t.initMongo(ctx); err != nil {
		return err
	}
	if err := t.initEx(); err != nil {
		return err
	}
	t.initRobots()
	t.initExecutor()
	t.Sugar.Info("trader initialized")
	return nil
}

func (t *Trader) initLogger() error {
	if t.Sugar != nil {
		return nil
	}
	l, err := hs.NewZapLogger(t.config.Log)
	if err != nil {
		return err
	}
	t.Sugar = l.Sugar()
	t.Sugar.Info("Logger initialized")
	return nil
}

// initMongo connects when a mongo uri is configured. Without one the journal is off and
// client order ids restart from zero.
func (t *Trader) initMongo(ctx context.Context) error {
	t.ids = executor.NewClientIdManager(nil)
	if t.config.Mongo.URI == "" {
		t.Sugar.Warn("no mongo configured, journal disabled")
		return nil
	}
	db, err := hs.ConnectMongo(ctx, t.config.Mongo)
	if err != nil {
		return err
	}
	t.db = db
	t.journal = journal.New(db, t.Sugar)
	t.ids = executor.NewClientIdManager(db.Collection(collNameState))
	if err := t.ids.Load(ctx); err != nil {
		return errors.Wrap(err, "load client id state")
	}
	t.Sugar.Info("Mongo initialized")
	return nil
}

func (t *Trader) initEx() error {
	name := t.config.Exchange.Name
	if t.dry {
		name = exchange.Paper
	}
	switch name {
	case exchange.Binance:
		t.ex = binance.NewClient(binance.Config{
			Label:   t.config.Exchange.Label,
			Key:     t.config.Exchange.Key,
			Secret:  t.config.Exchange.Secret,
			Testnet: t.config.Exchange.Host == hostTestnet,
		})
	case exchange.Paper:
		if err := t.initPaper(); err != nil {
			return err
		}
	default:
		return errors.Errorf("unsupported exchange %q", t.config.Exchange.Name)
	}
	t.Sugar.Infof("Exchange %s initialized", name)
	return nil
}

func (t *Trader) initPaper() error {
	s := t.config.Paper.Balance
	if s == "" {
		s = defaultPaperBalance
	}
	balance, err := decimal.NewFromString(s)
	if err != nil {
		return errors.Wrapf(err, "paper balance %q", s)
	}
	t.paper = paper.New()
	t.paper.SetBalance(t.opts.MarginAsset, balance)
	t.ex = t.paper
	return nil
}

func (t *Trader) initRobots() {
	for _, conf := range t.config.Robots {
		t.robots = append(t.robots, broadcast.New(conf))
	}
	t.Sugar.Info("Broadcasters initialized")
}

func (t *Trader) initExecutor() {
	observers := executor.Observers{
		executor.NewLogObserver(t.Sugar),
		metrics.Observer{},
		robotObserver{t: t},
	}
	if t.journal != nil {
		observers = append(observers, t.journal)
	}
	t.executor = executor.NewExecutor(t.ex, t.opts, t.Sugar, observers)
	t.executor.SetClientIdManager(t.ids)
	t.executor.SetWatchlist(t.config.Exchange.Symbols)
}

func (t *Trader) Close(ctx context.Context) {
	if t.db != nil {
		if err := t.db.Client().Disconnect(ctx); err != nil {
			t.Sugar.Errorf("disconnect mongo error: %s", err)
		}
	}
	if t.Sugar != nil {
		t.Sugar.Info("trader closed")
		_ = t.Sugar.Sync()
	}
}

// Executor is exposed for the commands that drive it directly.
func (t *Trader) Executor() *executor.Executor {
	return t.executor
}
