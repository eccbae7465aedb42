// Package mongo provides a MongoDB-backed store.Store.
//
// Atomic uses multi-document transactions, so the deployment must be a
// replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/tier"
)

// Collection name constants.
const (
	colPasses   = "streampass_passes"
	colAccounts = "streampass_accounts"
	colSettings = "streampass_settings"
	colCounters = "streampass_counters"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	closed atomic.Bool
}

// New creates a store on database name of an already connected client.
func New(client *mongo.Client, name string) *Store {
	return &Store{client: client, db: client.Database(name)}
}

// Open connects to uri and selects database name.
func Open(ctx context.Context, uri, name string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("streampass/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("streampass/mongo: ping: %w", err)
	}
	return New(client, name), nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Atomic implements store.Store. Every operation issued on the callback
// context joins the session transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if s.closed.Load() {
		return streampass.ErrStoreClosed
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: start session: %w", streampass.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, s)
	})
	return err
}

// View implements store.Store. Reads go through a snapshot session.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if s.closed.Load() {
		return streampass.ErrStoreClosed
	}
	sess, err := s.client.StartSession(options.Session().SetSnapshot(true))
	if err != nil {
		return fmt.Errorf("%w: start session: %w", streampass.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	return fn(mongo.NewSessionContext(ctx, sess), s)
}

// Migrate creates indexes and seeds the pass counter.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: streampass/mongo: %s indexes: %w", streampass.ErrMigrationFailed, col, err)
		}
	}
	_, err := s.db.Collection(colCounters).UpdateOne(ctx,
		bson.M{"_id": counterPass},
		bson.M{"$setOnInsert": bson.M{"value": int64(0)}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: streampass/mongo: seed counter: %w", streampass.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return streampass.ErrStoreClosed
	}
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

// ==================== Pass Store ====================

func (s *Store) NextPassID(ctx context.Context) (pass.ID, error) {
	var c counterModel
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": counterPass},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return pass.None, fmt.Errorf("streampass/mongo: next pass id: %w", err)
	}
	return pass.ID(c.Value), nil
}

func (s *Store) CreatePass(ctx context.Context, p *pass.Pass) error {
	if p.ID.IsNone() {
		return &streampass.ValidationError{Field: "id", Message: "pass id 0 is reserved"}
	}
	if _, err := s.db.Collection(colPasses).InsertOne(ctx, toPassModel(p)); err != nil {
		return fmt.Errorf("streampass/mongo: create pass: %w", err)
	}
	_, err := s.db.Collection(colCounters).UpdateOne(ctx,
		bson.M{"_id": counterPass},
		bson.M{"$max": bson.M{"value": int64(p.ID)}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (s *Store) GetPass(ctx context.Context, passID pass.ID) (*pass.Pass, error) {
	var m passModel
	err := s.db.Collection(colPasses).FindOne(ctx, bson.M{"_id": int64(passID)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, streampass.ErrPassNotFound
		}
		return nil, fmt.Errorf("streampass/mongo: get pass: %w", err)
	}
	return fromPassModel(&m)
}

func (s *Store) UpdatePass(ctx context.Context, p *pass.Pass) error {
	res, err := s.db.Collection(colPasses).ReplaceOne(ctx, bson.M{"_id": int64(p.ID)}, toPassModel(p))
	if err != nil {
		return fmt.Errorf("streampass/mongo: update pass: %w", err)
	}
	if res.MatchedCount == 0 {
		return streampass.ErrPassNotFound
	}
	return nil
}

func (s *Store) ListPassesByOwner(ctx context.Context, owner pass.Address) ([]*pass.Pass, error) {
	cur, err := s.db.Collection(colPasses).Find(ctx,
		bson.M{"owner": string(owner)},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("streampass/mongo: list passes: %w", err)
	}
	var models []passModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("streampass/mongo: list passes: %w", err)
	}

	result := make([]*pass.Pass, 0, len(models))
	for i := range models {
		p, err := fromPassModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) CountPasses(ctx context.Context) (uint64, error) {
	n, err := s.db.Collection(colPasses).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("streampass/mongo: count passes: %w", err)
	}
	return uint64(n), nil
}

func (s *Store) GetActivePass(ctx context.Context, subscriber pass.Address) (pass.ID, error) {
	var m accountModel
	err := s.db.Collection(colAccounts).FindOne(ctx, bson.M{"_id": string(subscriber)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return pass.None, nil
		}
		return pass.None, fmt.Errorf("streampass/mongo: get account: %w", err)
	}
	return pass.ID(m.ActivePassID), nil
}

func (s *Store) SetActivePass(ctx context.Context, subscriber pass.Address, passID pass.ID) error {
	col := s.db.Collection(colAccounts)
	if passID.IsNone() {
		_, err := col.DeleteOne(ctx, bson.M{"_id": string(subscriber)})
		return err
	}
	_, err := col.ReplaceOne(ctx,
		bson.M{"_id": string(subscriber)},
		accountModel{Address: string(subscriber), ActivePassID: int64(passID)},
		options.Replace().SetUpsert(true),
	)
	return err
}

// ==================== Tier Store ====================

func (s *Store) GetSchedule(ctx context.Context) (tier.Schedule, error) {
	m, err := s.getSetting(ctx, settingSchedule)
	if err != nil {
		return nil, err
	}
	return tier.FromStrings(m.Values)
}

func (s *Store) SetSchedule(ctx context.Context, sched tier.Schedule) error {
	return s.putSetting(ctx, settingModel{Key: settingSchedule, Values: sched.Strings()})
}

func (s *Store) GetOwner(ctx context.Context) (pass.Address, error) {
	m, err := s.getSetting(ctx, settingOwner)
	if err != nil {
		return "", err
	}
	return pass.Address(m.Value), nil
}

func (s *Store) SetOwner(ctx context.Context, owner pass.Address) error {
	return s.putSetting(ctx, settingModel{Key: settingOwner, Value: string(owner)})
}

func (s *Store) getSetting(ctx context.Context, key string) (*settingModel, error) {
	var m settingModel
	err := s.db.Collection(colSettings).FindOne(ctx, bson.M{"_id": key}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, streampass.ErrNotConfigured
		}
		return nil, fmt.Errorf("streampass/mongo: get %s: %w", key, err)
	}
	return &m, nil
}

func (s *Store) putSetting(ctx context.Context, m settingModel) error {
	_, err := s.db.Collection(colSettings).ReplaceOne(ctx,
		bson.M{"_id": m.Key}, m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("streampass/mongo: put %s: %w", m.Key, err)
	}
	return nil
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPasses: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "active", Value: 1}}},
		},
	}
}
