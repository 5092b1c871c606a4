package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRemote 把镜像写入 MongoDB：每种变更一个集合，文档按
// (user_id, key) 定位；mutations 集合以变更 ID 为主键实现投递幂等。
type MongoRemote struct {
	client   *mongo.Client
	database *mongo.Database
}

type mirrorDocument struct {
	UserID   string   `bson:"user_id"`
	Document Document `bson:"document"`
}

// NewMongoRemote 连接远端并做一次连通性探测。
func NewMongoRemote(ctx context.Context, uri, databaseName string) (*MongoRemote, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetConnectTimeout(5*time.Second).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect remote store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	return &MongoRemote{client: client, database: client.Database(databaseName)}, nil
}

// Close 断开远端连接。
func (r *MongoRemote) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Deliver 先按幂等键登记本次投递，已登记的直接返回；
// 然后对目标文档做读-合并-写 upsert。
func (r *MongoRemote) Deliver(ctx context.Context, m Mutation) error {
	dedup := r.database.Collection("mutations")
	if _, err := dedup.InsertOne(ctx, bson.M{"_id": m.ID, "user_id": m.UserID, "kind": m.Kind}); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("%w: register mutation: %v", ErrRemoteUnavailable, err)
	}

	coll := r.database.Collection("mirror_" + m.Kind)
	filter := bson.M{"user_id": m.UserID, "document.key": m.Document.Key}

	merged := m.Document
	var existing mirrorDocument
	err := coll.FindOne(ctx, filter).Decode(&existing)
	switch {
	case err == nil:
		merged = MergeDocuments(existing.Document, m.Document)
	case errors.Is(err, mongo.ErrNoDocuments):
		// 首次写入
	default:
		return fmt.Errorf("%w: load mirror document: %v", ErrRemoteUnavailable, err)
	}

	replacement := mirrorDocument{UserID: m.UserID, Document: merged}
	if _, err := coll.ReplaceOne(ctx, filter, replacement, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("%w: write mirror document: %v", ErrRemoteUnavailable, err)
	}
	return nil
}
