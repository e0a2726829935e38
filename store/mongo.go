package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection      = "users"
	productsCollection   = "products"
	categoriesCollection = "categories"
	ordersCollection     = "orders"
	reviewsCollection    = "reviews"
	wishlistsCollection  = "wishlists"
	cartsCollection      = "carts"
	otpsCollection       = "otps"
)

// MongoStore keeps every collection in one MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	users      *mongoUsers
	products   *mongoProducts
	categories *mongoCategories
	orders     *mongoOrders
	reviews    *mongoReviews
	wishlists  *mongoWishlists
	carts      *mongoCarts
	otps       *mongoOtps
	reports    *mongoReports
}

// NewMongoStore wraps an already connected client.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:     client,
		db:         db,
		users:      &mongoUsers{c: db.Collection(usersCollection)},
		products:   &mongoProducts{c: db.Collection(productsCollection)},
		categories: &mongoCategories{c: db.Collection(categoriesCollection)},
		orders:     &mongoOrders{c: db.Collection(ordersCollection)},
		reviews:    &mongoReviews{c: db.Collection(reviewsCollection)},
		wishlists:  &mongoWishlists{c: db.Collection(wishlistsCollection)},
		carts:      &mongoCarts{c: db.Collection(cartsCollection)},
		otps:       &mongoOtps{c: db.Collection(otpsCollection)},
		reports:    &mongoReports{db: db},
	}
}

func (s *MongoStore) Users() UserStore { return s.users }
func (s *MongoStore) Products() ProductStore { return s.products }
func (s *MongoStore) Categories() CategoryStore { return s.categories }
func (s *MongoStore) Orders() OrderStore { return s.orders }
func (s *MongoStore) Reviews() ReviewStore { return s.reviews }
func (s *MongoStore) Wishlists() WishlistStore { return s.wishlists }
func (s *MongoStore) Carts() CartStore { return s.carts }
func (s *MongoStore) Otps() OtpStore { return s.otps }
func (s *MongoStore) Reports() Reports { return s.reports }
func (s *MongoStore) Kind() string { return "mongodb" }
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique and lookup indexes the stores rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "googleId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		productsCollection: {
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "categories", Value: 1}}},
			{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		categoriesCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "parent", Value: 1}}},
		},
		ordersCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		reviewsCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "product", Value: 1}, {Key: "order", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "product", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		wishlistsCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		cartsCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		otpsCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}, {Key: "purpose", Value: 1}}},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
	for name, idx := range specs {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	log.Println("MongoDB indexes ensured")
	return nil
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// findPage counts the filter's matches and decodes one page of them into out.
func findPage(ctx context.Context, c *mongo.Collection, filter bson.M, sort bson.D, p Page, out interface{}) (int64, error) {
	total, err := c.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}
	opts := options.Find().SetSort(sort).SetSkip(p.Skip())
	if p.Limit > 0 {
		opts.SetLimit(int64(p.Limit))
	}
	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return 0, err
	}
	if err := cursor.All(ctx, out); err != nil {
		return 0, err
	}
	return total, nil
}
