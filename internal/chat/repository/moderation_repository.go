package repository

import (
	"context"
	"time"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ModerationRepository ban lookup
type ModerationRepository interface {
	CreateBan(ctx context.Context, ban *domain.Ban) error
	// FindActiveBan 回傳 now 時仍有效的 ban, 沒有則回傳 nil, nil
	FindActiveBan(ctx context.Context, roomID, profileID string, now time.Time) (*domain.Ban, error)
}

type moderationRepository struct {
	bansColl *mongo.Collection
}

// NewMongoModerationRepository create ModerationRepository
func NewMongoModerationRepository(db *mongo.Database) ModerationRepository {
	return &moderationRepository{
		bansColl: db.Collection("room_bans"),
	}
}

func (r *moderationRepository) CreateBan(ctx context.Context, ban *domain.Ban) error {
	_, err := r.bansColl.InsertOne(ctx, ban)
	return err
}

func (r *moderationRepository) FindActiveBan(ctx context.Context, roomID, profileID string, now time.Time) (*domain.Ban, error) {
	filter := bson.M{
		"room_id":    roomID,
		"profile_id": profileID,
		"$or": bson.A{
			bson.M{"expires_at": nil},
			bson.M{"expires_at": bson.M{"$gt": now}},
		},
	}

	cur, err := r.bansColl.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var bans []domain.Ban
	if err := cur.All(ctx, &bans); err != nil {
		return nil, err
	}
	return pickStrictestBan(bans), nil
}

// pickStrictestBan 永久 ban 優先, 否則取最晚到期者
func pickStrictestBan(bans []domain.Ban) *domain.Ban {
	var picked *domain.Ban
	for i := range bans {
		b := &bans[i]
		if b.ExpiresAt == nil {
			return b
		}
		if picked == nil || b.ExpiresAt.After(*picked.ExpiresAt) {
			picked = b
		}
	}
	return picked
}
