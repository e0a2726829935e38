package store

import (
	"context"
	"regexp"
	"time"

	"storefront-api/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoProducts struct {
	c *mongo.Collection
}

func (s *mongoProducts) Create(ctx context.Context, p *models.Product) error {
	now := time.Now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.c.InsertOne(ctx, p)
	return translate(err)
}

func (s *mongoProducts) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	var product models.Product
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&product); err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (s *mongoProducts) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error) {
	products := []models.Product{}
	if len(ids) == 0 {
		return products, nil
	}
	cursor, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *mongoProducts) Update(ctx context.Context, p *models.Product) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoProducts) SetRating(ctx context.Context, id primitive.ObjectID, rating float64, numReviews int) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, ratingUpdateDoc(rating, numReviews, time.Now().UTC()))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func ratingUpdateDoc(rating float64, numReviews int, now time.Time) bson.M {
	return bson.M{"$set": bson.M{"rating": rating, "numReviews": numReviews, "updatedAt": now}}
}

func (s *mongoProducts) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoProducts) List(ctx context.Context, f ProductFilter, p Page) ([]models.Product, int64, error) {
	products := []models.Product{}
	total, err := findPage(ctx, s.c, productFilterDoc(f), productSortDoc(f.Sort), p, &products)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *mongoProducts) All(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	cursor, err := s.c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *mongoProducts) CountInCategory(ctx context.Context, categoryID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"$or": bson.A{
		bson.M{"category": categoryID},
		bson.M{"categories": categoryID},
	}})
}

func productFilterDoc(f ProductFilter) bson.M {
	filter := bson.M{}
	var and bson.A
	if f.ActiveOnly {
		filter["isActive"] = true
	}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
			bson.M{"brand": pattern},
		}})
	}
	if len(f.CategoryIDs) > 0 {
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"category": bson.M{"$in": f.CategoryIDs}},
			bson.M{"categories": bson.M{"$in": f.CategoryIDs}},
		}})
	}
	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}
	if f.MinRating != nil {
		filter["rating"] = bson.M{"$gte": *f.MinRating}
	}
	if f.Featured != nil {
		filter["isFeatured"] = *f.Featured
	}
	if len(and) > 0 {
		filter["$and"] = and
	}
	return filter
}

func productSortDoc(sort string) bson.D {
	switch sort {
	case SortOldest:
		return bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	case SortPriceAsc:
		return bson.D{{Key: "price", Value: 1}, {Key: "_id", Value: 1}}
	case SortPriceDesc:
		return bson.D{{Key: "price", Value: -1}, {Key: "_id", Value: -1}}
	case SortRating:
		return bson.D{{Key: "rating", Value: -1}, {Key: "numReviews", Value: -1}, {Key: "_id", Value: -1}}
	case SortName:
		return bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}
	}
	return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
}

type mongoCategories struct {
	c *mongo.Collection
}

func (s *mongoCategories) Create(ctx context.Context, cat *models.Category) error {
	now := time.Now().UTC()
	if cat.ID.IsZero() {
		cat.ID = primitive.NewObjectID()
	}
	cat.CreatedAt, cat.UpdatedAt = now, now
	_, err := s.c.InsertOne(ctx, cat)
	return translate(err)
}

func (s *mongoCategories) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Category, error) {
	var cat models.Category
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&cat); err != nil {
		return nil, translate(err)
	}
	return &cat, nil
}

func (s *mongoCategories) FindBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var cat models.Category
	if err := s.c.FindOne(ctx, bson.M{"slug": slug}).Decode(&cat); err != nil {
		return nil, translate(err)
	}
	return &cat, nil
}

func (s *mongoCategories) Update(ctx context.Context, cat *models.Category) error {
	cat.UpdatedAt = time.Now().UTC()
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": cat.ID}, cat)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoCategories) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoCategories) List(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	filter := bson.M{}
	if activeOnly {
		filter["isActive"] = true
	}
	return s.find(ctx, filter)
}

func (s *mongoCategories) Children(ctx context.Context, parent primitive.ObjectID) ([]models.Category, error) {
	return s.find(ctx, bson.M{"parent": parent})
}

func (s *mongoCategories) find(ctx context.Context, filter bson.M) ([]models.Category, error) {
	cats := []models.Category{}
	cursor, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	if err := cursor.All(ctx, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

type mongoReviews struct {
	c *mongo.Collection
}

func (s *mongoReviews) Create(ctx context.Context, r *models.Review) error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	r.CreatedAt = time.Now().UTC()
	_, err := s.c.InsertOne(ctx, r)
	return translate(err)
}

func (s *mongoReviews) ListByProduct(ctx context.Context, productID primitive.ObjectID, p Page) ([]models.Review, int64, error) {
	reviews := []models.Review{}
	sort := bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	total, err := findPage(ctx, s.c, bson.M{"product": productID}, sort, p, &reviews)
	if err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

func (s *mongoReviews) Summary(ctx context.Context, productID primitive.ObjectID) (float64, int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"product": productID}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, err
	}
	var rows []struct {
		Avg   float64 `bson:"avg"`
		Count int     `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Avg, rows[0].Count, nil
}
