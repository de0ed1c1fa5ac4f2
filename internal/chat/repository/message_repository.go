package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrMessageNotFound message id not in room
var ErrMessageNotFound = errors.New("message not found")

// MessageRepository durable message log of help rooms
type MessageRepository interface {
	// FetchRoomMessages 取得房間全部訊息, 依 created_at 由舊到新
	FetchRoomMessages(ctx context.Context, roomID string, includeInstructorsOnly bool) ([]domain.StoredMessage, error)
	// InsertMessage 寫入一則訊息並指派 msg.ID
	InsertMessage(ctx context.Context, msg *domain.StoredMessage) error
	// MarkAsRead 將 readerID 加入 read_by, 重複呼叫無副作用
	MarkAsRead(ctx context.Context, roomID string, messageID int64, readerID string) error
	// CountUnreadByRoom 每個房間中 userID 未讀且非自己寫的訊息數
	CountUnreadByRoom(ctx context.Context, userID string, roomIDs []string, includeInstructorsOnly bool) ([]domain.RoomUnreadInfo, error)
}

const (
	messagesCollection = "help_room_messages"
	countersCollection = "counters"
)

type chatMessageRepository struct {
	coll     *mongo.Collection
	counters *mongo.Collection
}

// NewMongoChatMessageRepository create a MessageRepository
func NewMongoChatMessageRepository(db *mongo.Database) MessageRepository {
	return &chatMessageRepository{
		coll:     db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
	}
}

func (r *chatMessageRepository) FetchRoomMessages(ctx context.Context, roomID string, includeInstructorsOnly bool) ([]domain.StoredMessage, error) {
	filter := bson.M{"room_id": roomID}
	if !includeInstructorsOnly {
		filter["instructors_only"] = bson.M{"$ne": true}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find room messages: %w", err)
	}

	messages := []domain.StoredMessage{}
	if err := cur.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode room messages: %w", err)
	}
	return messages, nil
}

func (r *chatMessageRepository) InsertMessage(ctx context.Context, msg *domain.StoredMessage) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	msg.ID = id

	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// nextID 以 counters collection 產生遞增的 message id
func (r *chatMessageRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messagesCollection},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	return counter.Seq, nil
}

func (r *chatMessageRepository) MarkAsRead(ctx context.Context, roomID string, messageID int64, readerID string) error {
	filter := bson.M{"_id": messageID, "room_id": roomID}
	update := bson.M{"$addToSet": bson.M{"read_by": readerID}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *chatMessageRepository) CountUnreadByRoom(ctx context.Context, userID string, roomIDs []string, includeInstructorsOnly bool) ([]domain.RoomUnreadInfo, error) {
	if len(roomIDs) == 0 {
		return []domain.RoomUnreadInfo{}, nil
	}

	match := bson.D{
		{Key: "room_id", Value: bson.D{{Key: "$in", Value: roomIDs}}},
		{Key: "author_id", Value: bson.D{{Key: "$ne", Value: userID}}},
		{Key: "read_by", Value: bson.D{{Key: "$ne", Value: userID}}},
	}
	if !includeInstructorsOnly {
		match = append(match, bson.E{Key: "instructors_only", Value: bson.D{{Key: "$ne", Value: true}}})
	}

	pipeline := mongo.Pipeline{
		// 1. 只看指定房間中別人寫的、userID 尚未讀的訊息
		bson.D{{Key: "$match", Value: match}},
		// 2. 依 room_id 分組
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$room_id"},
			{Key: "unread_count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "last_unread_timestamp", Value: bson.D{{Key: "$max", Value: "$created_at"}}},
		}}},
		// 3. 最近有未讀的房間在前
		bson.D{{Key: "$sort", Value: bson.D{{Key: "last_unread_timestamp", Value: -1}}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate error: %w", err)
	}

	results := []domain.RoomUnreadInfo{}
	if err := cur.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("cursor All error: %w", err)
	}
	return results, nil
}
