package store

import (
	"context"
	"regexp"
	"time"

	"storefront-api/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoUsers struct {
	c *mongo.Collection
}

func (s *mongoUsers) Create(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.Email = models.NormalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := s.c.InsertOne(ctx, u)
	return translate(err)
}

func (s *mongoUsers) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *mongoUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.c.FindOne(ctx, bson.M{"email": models.NormalizeEmail(email)}).Decode(&user); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *mongoUsers) FindByEmailOrGoogleID(ctx context.Context, email, googleID string) (*models.User, error) {
	or := bson.A{bson.M{"email": models.NormalizeEmail(email)}}
	if googleID != "" {
		or = append(or, bson.M{"googleId": googleID})
	}
	var user models.User
	if err := s.c.FindOne(ctx, bson.M{"$or": or}).Decode(&user); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *mongoUsers) Update(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoUsers) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoUsers) List(ctx context.Context, f UserFilter, p Page) ([]models.User, int64, error) {
	users := []models.User{}
	total, err := findPage(ctx, s.c, userFilterDoc(f), userSortDoc(f), p, &users)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func userFilterDoc(f UserFilter) bson.M {
	filter := bson.M{}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"name": pattern}, bson.M{"email": pattern}}
	}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	if f.Blocked != nil {
		filter["isBlocked"] = *f.Blocked
	}
	return filter
}

func userSortDoc(f UserFilter) bson.D {
	field := "createdAt"
	switch f.SortBy {
	case "name", "email":
		field = f.SortBy
	}
	dir := 1
	if f.SortDesc {
		dir = -1
	}
	return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}}
}
