package store

import (
	"context"
	"time"

	"storefront-api/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoOrders struct {
	c *mongo.Collection
}

func (s *mongoOrders) Create(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	_, err := s.c.InsertOne(ctx, o)
	return translate(err)
}

func (s *mongoOrders) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&order); err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (s *mongoOrders) Update(ctx context.Context, o *models.Order) error {
	o.UpdatedAt = time.Now().UTC()
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": o.ID}, o)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoOrders) List(ctx context.Context, f OrderFilter, p Page) ([]models.Order, int64, error) {
	orders := []models.Order{}
	sort := bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	total, err := findPage(ctx, s.c, orderFilterDoc(f), sort, p, &orders)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *mongoOrders) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user": userID})
}

func orderFilterDoc(f OrderFilter) bson.M {
	filter := bson.M{}
	if f.UserID != nil {
		filter["user"] = *f.UserID
	}
	if f.OrderStatus != "" {
		filter["orderStatus"] = f.OrderStatus
	}
	if f.PaymentStatus != "" {
		filter["paymentStatus"] = f.PaymentStatus
	}
	created := bson.M{}
	if f.From != nil {
		created["$gte"] = *f.From
	}
	if f.To != nil {
		created["$lt"] = *f.To
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}
	amount := bson.M{}
	if f.MinAmount != nil {
		amount["$gte"] = *f.MinAmount
	}
	if f.MaxAmount != nil {
		amount["$lte"] = *f.MaxAmount
	}
	if len(amount) > 0 {
		filter["totalAmount"] = amount
	}
	return filter
}

type mongoCarts struct {
	c *mongo.Collection
}

func (s *mongoCarts) Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	var cart models.Cart
	if err := s.c.FindOne(ctx, bson.M{"user": userID}).Decode(&cart); err != nil {
		return nil, translate(err)
	}
	return &cart, nil
}

// Save upserts the user's single cart document.
func (s *mongoCarts) Save(ctx context.Context, cart *models.Cart) error {
	cart.UpdatedAt = time.Now().UTC()
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	update := bson.M{"$set": bson.M{"items": cart.Items, "updatedAt": cart.UpdatedAt}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var saved models.Cart
	if err := s.c.FindOneAndUpdate(ctx, bson.M{"user": cart.User}, update, opts).Decode(&saved); err != nil {
		return translate(err)
	}
	cart.ID = saved.ID
	return nil
}

func (s *mongoCarts) Delete(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"user": userID})
	return err
}

type mongoWishlists struct {
	c *mongo.Collection
}

func (s *mongoWishlists) Get(ctx context.Context, userID primitive.ObjectID) (*models.Wishlist, error) {
	var w models.Wishlist
	if err := s.c.FindOne(ctx, bson.M{"user": userID}).Decode(&w); err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (s *mongoWishlists) Save(ctx context.Context, w *models.Wishlist) error {
	if w.Items == nil {
		w.Items = []models.WishlistItem{}
	}
	update := bson.M{"$set": bson.M{"items": w.Items}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var saved models.Wishlist
	if err := s.c.FindOneAndUpdate(ctx, bson.M{"user": w.User}, update, opts).Decode(&saved); err != nil {
		return translate(err)
	}
	w.ID = saved.ID
	return nil
}

type mongoOtps struct {
	c *mongo.Collection
}

func (s *mongoOtps) Replace(ctx context.Context, o *models.Otp) error {
	o.Email = models.NormalizeEmail(o.Email)
	if _, err := s.c.DeleteMany(ctx, bson.M{"email": o.Email, "purpose": o.Purpose}); err != nil {
		return err
	}
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, o)
	return translate(err)
}

func (s *mongoOtps) Find(ctx context.Context, email, purpose string) (*models.Otp, error) {
	var o models.Otp
	filter := bson.M{"email": models.NormalizeEmail(email), "purpose": purpose}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if err := s.c.FindOne(ctx, filter, opts).Decode(&o); err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *mongoOtps) RecordFailure(ctx context.Context, id primitive.ObjectID) (int, error) {
	var o models.Otp
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"attempts": 1}}, opts).Decode(&o)
	if err != nil {
		return 0, translate(err)
	}
	return o.Attempts, nil
}

func (s *mongoOtps) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
