package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/keyxmakerx/stockroom/internal/apperror"
)

// usersCollection holds one document per identity, keyed by the UUID.
const usersCollection = "users"

// mongoUserRepository implements UserRepository on MongoDB.
type mongoUserRepository struct {
	coll *mongo.Collection
}

// NewMongoUserRepository creates a user repository on db and ensures the
// unique email index exists.
func NewMongoUserRepository(ctx context.Context, db *mongo.Database) (UserRepository, error) {
	coll := db.Collection(usersCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uq_users_email"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating users email index: %w", err)
	}
	return &mongoUserRepository{coll: coll}, nil
}

// Create inserts a new user document.
func (r *mongoUserRepository) Create(ctx context.Context, user *User) error {
	_, err := r.coll.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by their UUID.
func (r *mongoUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}}, "by id")
}

// FindByEmail retrieves a user by their email address.
func (r *mongoUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}}, "by email")
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.D, what string) (*User, error) {
	var user User
	err := r.coll.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user %s: %w", what, err)
	}
	return &user, nil
}

// EmailExists returns true if a user with the given email already exists.
func (r *mongoUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "email", Value: email}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return n > 0, nil
}

// UpdateFields applies the non-nil fields of upd with a single $set.
func (r *mongoUserRepository) UpdateFields(ctx context.Context, id string, upd UserUpdate) error {
	if upd.IsEmpty() {
		return nil
	}

	set := bson.D{}
	add := func(field string, v *string) {
		if v != nil {
			set = append(set, bson.E{Key: field, Value: *v})
		}
	}
	add("username", upd.Username)
	add("photo", upd.Photo)
	add("phone", upd.Phone)
	add("biography", upd.Biography)
	add("password_hash", upd.PasswordHash)
	set = append(set, bson.E{Key: "updated_at", Value: time.Now().UTC()})

	res, err := r.coll.UpdateByID(ctx, id, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperror.NewNotFound("user not found")
	}
	return nil
}
