package repository

import (
	"context"
	"errors"

	"github.com/pawtograder/platform-sub008/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrRoomNotFound room id does not exist
var ErrRoomNotFound = errors.New("room not found")

// RoomRepository definition help room
type RoomRepository interface {
	CreateRoom(ctx context.Context, room *domain.HelpRoom) error
	FindByID(ctx context.Context, roomID string) (*domain.HelpRoom, error)
	FindByMember(ctx context.Context, profileID string) ([]domain.HelpRoom, error)
}

type chatRepository struct {
	roomsColl *mongo.Collection
}

// NewMongoChatRepository create new mongo help room repository
func NewMongoChatRepository(db *mongo.Database) RoomRepository {
	return &chatRepository{
		roomsColl: db.Collection("help_rooms"),
	}
}

// CreateRoom create room
func (r *chatRepository) CreateRoom(ctx context.Context, room *domain.HelpRoom) error {
	_, err := r.roomsColl.InsertOne(ctx, room)
	return err
}

// FindByID find room by id
func (r *chatRepository) FindByID(ctx context.Context, roomID string) (*domain.HelpRoom, error) {
	var room domain.HelpRoom
	err := r.roomsColl.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// FindByMember rooms where profileID is a member or an instructor
func (r *chatRepository) FindByMember(ctx context.Context, profileID string) ([]domain.HelpRoom, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"members": profileID},
		bson.M{"instructors": profileID},
	}}
	cur, err := r.roomsColl.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	rooms := []domain.HelpRoom{}
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}
