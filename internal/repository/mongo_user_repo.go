package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/josemqu/precio-nafta-api/internal/model"
)

// MongoUserRepo はMongoDBのコレクションを使用したユーザーリポジトリ。
// usernameの一意インデックスは database.EnsureMongoIndexes で作成する。
type MongoUserRepo struct {
	coll *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(coll *mongo.Collection) *MongoUserRepo {
	return &MongoUserRepo{coll: coll}
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	raw, err := r.coll.FindOne(ctx, bson.D{{Key: "username", Value: username}}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find user by username: %w", ErrStore, err)
	}

	js, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to convert user document: %w", ErrStore, err)
	}
	user, err := model.DecodeUser(js)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode user document: %w", ErrStore, err)
	}
	return user, nil
}

// Insert はユーザーを作成する。
func (r *MongoUserRepo) Insert(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	oid := primitive.NewObjectID()
	doc := bson.D{
		{Key: "_id", Value: oid},
		{Key: "username", Value: user.Username},
		{Key: "email", Value: nullableString(user.Email)},
		{Key: "full_name", Value: nullableString(user.FullName)},
		{Key: "hashed_password", Value: user.HashedPassword},
		{Key: "disabled", Value: user.Disabled},
		{Key: "created_at", Value: primitive.NewDateTimeFromTime(user.CreatedAt)},
	}

	_, err := r.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("%w: failed to insert user: %w", ErrStore, err)
	}

	user.ID = oid.Hex()
	return nil
}

// nullableString は空文字列をnullとして保存するための変換。
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
