package persist

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reflexcore/ingestcore/internal/model"
)

// symbolStateDoc is the symbol_state collection's document shape.
type symbolStateDoc struct {
	Symbol      string `bson:"symbol"`
	State       string `bson:"state"`
	DoNotTrade  *bool  `bson:"do_not_trade,omitempty"`
}

// StateSource is the bridge's durable db source: a one-shot bootstrap
// query against symbol_state plus a live change stream, the idiomatic
// MongoDB analogue of a Postgres LISTEN/NOTIFY channel.
type StateSource struct {
	collection *mongo.Collection
}

// NewStateSource wraps store's symbol_state collection.
func NewStateSource(store *Store) *StateSource {
	return &StateSource{collection: store.DB().Collection(SymbolStateCollection)}
}

// Bootstrap selects every symbol currently in WARM or HOT state. The
// do_not_trade filter is applied only when at least one document in the
// collection carries that field, mirroring a schema that may or may not
// have adopted it yet.
func (s *StateSource) Bootstrap(ctx context.Context) (map[model.Symbol]model.State, error) {
	filter := bson.D{{Key: "state", Value: bson.D{{Key: "$in", Value: bson.A{"WARM", "HOT"}}}}}
	if s.hasDoNotTradeField(ctx) {
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "do_not_trade", Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: "do_not_trade", Value: false}},
		}})
	}

	cur, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[model.Symbol]model.State)
	for cur.Next(ctx) {
		var doc symbolStateDoc
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		sym, err := model.NormalizeSymbol(doc.Symbol)
		if err != nil {
			continue
		}
		st, ok := model.ParseState(doc.State)
		if !ok {
			continue
		}
		out[sym] = st
	}
	return out, cur.Err()
}

// hasDoNotTradeField probes for a single document carrying the
// do_not_trade field, treating a schema without it as "column missing"
// rather than an error.
func (s *StateSource) hasDoNotTradeField(ctx context.Context) bool {
	err := s.collection.FindOne(ctx, bson.D{{Key: "do_not_trade", Value: bson.D{{Key: "$exists", Value: true}}}}).Err()
	return err == nil
}

// changeEvent is the subset of a change stream event this source reads.
type changeEvent struct {
	OperationType string          `bson:"operationType"`
	FullDocument  *symbolStateDoc `bson:"fullDocument"`
	DocumentKey   bson.M          `bson:"documentKey"`
}

// Watch opens a change stream on symbol_state and reports each upsert as a
// StateAssertion. It blocks until ctx is cancelled or the stream ends
// without error; a stream error is retried after a 1s backoff.
func (s *StateSource) Watch(ctx context.Context, onChange func(model.StateAssertion)) error {
	for {
		if err := s.watchOnce(ctx, onChange); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("persist: change stream error: %v; retrying in 1s", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
}

func (s *StateSource) watchOnce(ctx context.Context, onChange func(model.StateAssertion)) error {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := s.collection.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return err
	}
	defer stream.Close(ctx)

	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			continue
		}
		if ev.OperationType == "delete" {
			continue
		}

		assertion, ok := s.assertionFromEvent(ctx, ev)
		if !ok {
			continue
		}
		onChange(assertion)
	}
	return stream.Err()
}

// assertionFromEvent extracts a StateAssertion from a change event. If the
// full document lookup didn't resolve (e.g. the document was modified
// again before lookup), it falls back to a point query by the event's
// documentKey, mirroring a bare-symbol notify payload.
func (s *StateSource) assertionFromEvent(ctx context.Context, ev changeEvent) (model.StateAssertion, bool) {
	if ev.FullDocument != nil && ev.FullDocument.Symbol != "" {
		return model.StateAssertion{Symbol: ev.FullDocument.Symbol, State: ev.FullDocument.State}, true
	}

	var doc symbolStateDoc
	if err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: ev.DocumentKey["_id"]}}).Decode(&doc); err != nil {
		return model.StateAssertion{}, false
	}
	if doc.Symbol == "" {
		return model.StateAssertion{}, false
	}
	return model.StateAssertion{Symbol: doc.Symbol, State: doc.State}, true
}
