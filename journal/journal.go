// Package journal persists the execution journal of managed trades to mongo.
// Every journal event is kept as one record, and each trade has a summary document
// that collects its open and close.
package journal

import (
	"context"
	"fmt"
	"github.com/pkg/errors"
	"github.com/xyths/qbracket/executor"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"time"
)

const (
	collNameExecution = "execution"
	collNameTrade     = "trade"
	writeTimeout      = 5 * time.Second
)

// Record is one journal event as stored.
type Record struct {
	Id          string    `bson:"_id"`
	TradeId     string    `bson:"tradeId"`
	SignalId    string    `bson:"signalId"`
	Symbol      string    `bson:"symbol"`
	Side        string    `bson:"side"`
	Event       string    `bson:"event"`
	OrderId     int64     `bson:"orderId"`
	Vwap        string    `bson:"vwap"`
	Qty         string    `bson:"qty"`
	Fee         string    `bson:"fee"`
	FeeAsset    string    `bson:"feeAsset"`
	RealizedPnl string    `bson:"realizedPnl"`
	Time        time.Time `bson:"time"`
}

// Trade is the summary of one managed trade.
type Trade struct {
	Id        string    `bson:"_id"`
	SignalId  string    `bson:"signalId"`
	Symbol    string    `bson:"symbol"`
	Side      string    `bson:"side"`
	OpenVwap  string    `bson:"openVwap,omitempty"`
	OpenQty   string    `bson:"openQty,omitempty"`
	OpenFee   string    `bson:"openFee,omitempty"`
	OpenTime  time.Time `bson:"openTime,omitempty"`
	CloseVwap string    `bson:"closeVwap,omitempty"`
	CloseQty  string    `bson:"closeQty,omitempty"`
	CloseFee  string    `bson:"closeFee,omitempty"`
	CloseTime time.Time `bson:"closeTime,omitempty"`
	Pnl       string    `bson:"pnl,omitempty"`
}

func recordOf(r executor.JournalRecord) Record {
	return Record{
		Id:          fmt.Sprintf("%s-%s", r.TradeId, r.Event),
		TradeId:     r.TradeId,
		SignalId:    r.SignalId,
		Symbol:      r.Symbol,
		Side:        string(r.Side),
		Event:       r.Event,
		OrderId:     r.OrderId,
		Vwap:        r.Vwap.String(),
		Qty:         r.Qty.String(),
		Fee:         r.Fee.String(),
		FeeAsset:    r.FeeAsset,
		RealizedPnl: r.RealizedPnl.String(),
		Time:        r.Time,
	}
}

type Journal struct {
	Sugar *zap.SugaredLogger

	execution *mongo.Collection
	trade     *mongo.Collection
}

func New(db *mongo.Database, sugar *zap.SugaredLogger) *Journal {
	return &Journal{
		Sugar:     sugar,
		execution: db.Collection(collNameExecution),
		trade:     db.Collection(collNameTrade),
	}
}

// Add stores the record once and folds it into the trade summary. A record already stored is not an error.
func (j *Journal) Add(ctx context.Context, r executor.JournalRecord) error {
	rec := recordOf(r)
	if _, err := j.execution.InsertOne(ctx, rec); err != nil {
		if !isDuplicateError(err) {
			return errors.Wrap(err, "insert execution")
		}
		j.Sugar.Debugf("execution %s already journaled", rec.Id)
	}
	return j.updateTrade(ctx, rec)
}

func (j *Journal) updateTrade(ctx context.Context, rec Record) error {
	fields := bson.D{
		{Key: "signalId", Value: rec.SignalId},
		{Key: "symbol", Value: rec.Symbol},
		{Key: "side", Value: rec.Side},
	}
	switch rec.Event {
	case executor.JournalOpen:
		fields = append(fields,
			bson.E{Key: "openVwap", Value: rec.Vwap},
			bson.E{Key: "openQty", Value: rec.Qty},
			bson.E{Key: "openFee", Value: rec.Fee},
			bson.E{Key: "openTime", Value: rec.Time},
		)
	case executor.JournalClose:
		fields = append(fields,
			bson.E{Key: "closeVwap", Value: rec.Vwap},
			bson.E{Key: "closeQty", Value: rec.Qty},
			bson.E{Key: "closeFee", Value: rec.Fee},
			bson.E{Key: "closeTime", Value: rec.Time},
			bson.E{Key: "pnl", Value: rec.RealizedPnl},
		)
	}
	option := options.FindOneAndUpdate().SetUpsert(true)
	r := j.trade.FindOneAndUpdate(
		ctx,
		bson.D{
			{Key: "_id", Value: rec.TradeId},
		},
		bson.D{
			{Key: "$set", Value: fields},
		},
		option,
	)
	if r.Err() != nil && r.Err() != mongo.ErrNoDocuments {
		return errors.Wrap(r.Err(), "update trade")
	}
	return nil
}

// List returns the latest records, newest first.
func (j *Journal) List(ctx context.Context, limit int64) (records []Record, err error) {
	option := options.Find().SetSort(bson.D{{Key: "time", Value: -1}}).SetLimit(limit)
	cursor, err := j.execution.Find(ctx, bson.D{}, option)
	if err != nil {
		return
	}
	err = cursor.All(ctx, &records)
	return
}

// Trades returns the summaries of symbol, all symbols when empty.
func (j *Journal) Trades(ctx context.Context, symbol string) (trades []Trade, err error) {
	filter := bson.D{}
	if symbol != "" {
		filter = bson.D{{Key: "symbol", Value: symbol}}
	}
	cursor, err := j.trade.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "openTime", Value: 1}}))
	if err != nil {
		return
	}
	err = cursor.All(ctx, &trades)
	return
}

func (j *Journal) Clear(ctx context.Context) error {
	if _, err := j.execution.DeleteMany(ctx, bson.D{}); err != nil {
		return errors.Wrap(err, "clear execution")
	}
	if _, err := j.trade.DeleteMany(ctx, bson.D{}); err != nil {
		return errors.Wrap(err, "clear trade")
	}
	return nil
}

// Observe journals executor journal events. Writes never block the executor for long.
func (j *Journal) Observe(e executor.Event) {
	if e.Kind != executor.EventJournal || e.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.Add(ctx, *e.Journal); err != nil {
		j.Sugar.Errorf("journal trade %s %s error: %s", e.Journal.TradeId, e.Journal.Event, err)
	}
}

func isDuplicateError(err error) bool {
	e, ok := err.(mongo.WriteException)
	if !ok {
		return false
	}
	if e.WriteConcernError == nil && len(e.WriteErrors) == 1 && e.WriteErrors[0].Code == 11000 {
		return true
	}
	return false
}
