package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo はMongoDBクライアントを生成する。
// mongo.Connectはサーバーへの接続を待たないため、疎通確認にはPingを使用すること。
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetAppName("precio-nafta-api")

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	return client, nil
}

// EnsureMongoIndexes は必要なインデックスを作成する。既に存在する場合は何もしない。
// usersのusernameの一意インデックスが、登録時の重複検出を担う。
func EnsureMongoIndexes(ctx context.Context, stations, users *mongo.Collection) error {
	_, err := users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_1"),
	})
	if err != nil {
		return fmt.Errorf("failed to create users.username index: %w", err)
	}

	_, err = stations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "stationId", Value: 1}},
		Options: options.Index().SetName("stationId_1"),
	})
	if err != nil {
		return fmt.Errorf("failed to create stations.stationId index: %w", err)
	}

	return nil
}
