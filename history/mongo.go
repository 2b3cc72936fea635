package history

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/types"
)

// mongoHistory 每段历史一个文档，消息通过 $push 追加
type mongoHistory struct {
	ConfUID    string    `bson:"conf_uid"`
	HistoryUID string    `bson:"history_uid"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
	Messages   []Message `bson:"messages"`
}

// MongoStore 基于 MongoDB 的历史存储
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore connects to cfg.URI and ensures the (conf_uid, history_uid)
// unique index exists.
func NewMongoStore(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, types.NewMissingFieldError("uri", "mongo history store")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, types.Errorf(types.ErrHistoryIO, "connect to mongo").WithCause(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, types.Errorf(types.ErrHistoryIO, "ping mongo").WithCause(err)
	}

	s := NewMongoStoreWithCollection(client, client.Database(cfg.Database).Collection(cfg.Collection), logger)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewMongoStoreWithCollection wraps an existing collection. client may be
// nil when the caller owns the connection.
func NewMongoStoreWithCollection(client *mongo.Client, coll *mongo.Collection, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{
		client: client,
		coll:   coll,
		logger: logger.With(zap.String("component", "history_mongo_store")),
	}
}

// EnsureIndexes 创建 (conf_uid, history_uid) 唯一索引
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conf_uid", Value: 1}, {Key: "history_uid", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return types.Errorf(types.ErrHistoryIO, "create mongo history index").WithCause(err)
	}
	return nil
}

func historyFilter(confUID, historyUID string) bson.D {
	return bson.D{{Key: "conf_uid", Value: confUID}, {Key: "history_uid", Value: historyUID}}
}

// Create implements Store.
func (s *MongoStore) Create(ctx context.Context, confUID string) (string, error) {
	if _, err := SanitizePathComponent(confUID); err != nil {
		return "", err
	}
	uid := NewUID(time.Now())
	now := time.Now().UTC()
	doc := mongoHistory{ConfUID: confUID, HistoryUID: uid, CreatedAt: now, UpdatedAt: now, Messages: []Message{}}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", ioError("create", confUID, uid, err)
	}
	s.logger.Info("history created", zap.String("conf_uid", confUID), zap.String("history_uid", uid))
	return uid, nil
}

// Append implements Store. The document is upserted when missing.
func (s *MongoStore) Append(ctx context.Context, confUID, historyUID string, msg Message) error {
	if err := sanitizePair(confUID, historyUID); err != nil {
		return err
	}
	if !validRole(msg.Role) {
		return types.Errorf(types.ErrInvalidRequest, "invalid history role %q", msg.Role)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC().Truncate(time.Second)
	}
	now := time.Now().UTC()
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "messages", Value: msg}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: now}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}},
	}
	_, err := s.coll.UpdateOne(ctx, historyFilter(confUID, historyUID), update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return ioError("append", confUID, historyUID, err)
	}
	return nil
}

// Read implements Store.
func (s *MongoStore) Read(ctx context.Context, confUID, historyUID string) ([]Message, error) {
	if err := sanitizePair(confUID, historyUID); err != nil {
		return nil, err
	}
	var doc mongoHistory
	err := s.coll.FindOne(ctx, historyFilter(confUID, historyUID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.Errorf(types.ErrHistoryNotFound, "history %s/%s not found", confUID, historyUID)
	}
	if err != nil {
		return nil, ioError("read", confUID, historyUID, err)
	}
	msgs := make([]Message, len(doc.Messages))
	for i, m := range doc.Messages {
		m.Timestamp = m.Timestamp.UTC()
		msgs[i] = m
	}
	return msgs, nil
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context, confUID string) ([]Info, error) {
	if _, err := SanitizePathComponent(confUID); err != nil {
		return nil, err
	}
	filter := bson.D{
		{Key: "conf_uid", Value: confUID},
		{Key: "messages.0", Value: bson.D{{Key: "$exists", Value: true}}},
	}
	opts := options.Find().SetProjection(bson.D{
		{Key: "history_uid", Value: 1},
		{Key: "messages", Value: bson.D{{Key: "$slice", Value: -1}}},
	})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, ioError("list", confUID, "", err)
	}
	var docs []mongoHistory
	if err := cur.All(ctx, &docs); err != nil {
		return nil, ioError("list", confUID, "", err)
	}

	infos := make([]Info, 0, len(docs))
	for _, d := range docs {
		for i := range d.Messages {
			d.Messages[i].Timestamp = d.Messages[i].Timestamp.UTC()
		}
		if info, ok := infoFor(d.HistoryUID, d.Messages); ok {
			infos = append(infos, info)
		}
	}
	sortInfos(infos)
	return infos, nil
}

// Delete implements Store.
func (s *MongoStore) Delete(ctx context.Context, confUID, historyUID string) error {
	if err := sanitizePair(confUID, historyUID); err != nil {
		return err
	}
	if _, err := s.coll.DeleteOne(ctx, historyFilter(confUID, historyUID)); err != nil {
		return ioError("delete", confUID, historyUID, err)
	}
	s.logger.Info("history deleted", zap.String("conf_uid", confUID), zap.String("history_uid", historyUID))
	return nil
}

// Close 断开 MongoDB 连接
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

var (
	_ Store  = (*MongoStore)(nil)
	_ Closer = (*MongoStore)(nil)
)
