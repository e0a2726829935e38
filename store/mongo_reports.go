package store

import (
	"context"

	"storefront-api/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoReports struct {
	db *mongo.Database
}

// rangeMatch builds the $match on createdAt. Revenue reports pass
// excludeCancelled so cancelled orders never count as sales.
func rangeMatch(r TimeRange, excludeCancelled bool) bson.M {
	match := bson.M{}
	created := bson.M{}
	if !r.From.IsZero() {
		created["$gte"] = r.From
	}
	if !r.To.IsZero() {
		created["$lt"] = r.To
	}
	if len(created) > 0 {
		match["createdAt"] = created
	}
	if excludeCancelled {
		match["orderStatus"] = bson.M{"$ne": models.OrderStatusCancelled}
	}
	return match
}

func (s *mongoReports) aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, out interface{}) error {
	cursor, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func (s *mongoReports) CountCustomers(ctx context.Context, r TimeRange) (int64, error) {
	filter := rangeMatch(r, false)
	filter["role"] = models.RoleCustomer
	return s.db.Collection(usersCollection).CountDocuments(ctx, filter)
}

func (s *mongoReports) CountProducts(ctx context.Context) (int64, error) {
	return s.db.Collection(productsCollection).CountDocuments(ctx, bson.M{})
}

func (s *mongoReports) CountCategories(ctx context.Context) (int64, error) {
	return s.db.Collection(categoriesCollection).CountDocuments(ctx, bson.M{})
}

func (s *mongoReports) OrderTotals(ctx context.Context, r TimeRange) (OrderTotals, error) {
	var totals OrderTotals
	orders, err := s.db.Collection(ordersCollection).CountDocuments(ctx, rangeMatch(r, false))
	if err != nil {
		return totals, err
	}
	totals.Orders = orders

	var rows []struct {
		Revenue float64 `bson:"revenue"`
	}
	err = s.aggregate(ctx, ordersCollection, revenuePipeline(r), &rows)
	if err != nil {
		return totals, err
	}
	if len(rows) > 0 {
		totals.Revenue = models.Sum(rows[0].Revenue)
	}
	return totals, nil
}

func revenuePipeline(r TimeRange) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: rangeMatch(r, true)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: "$totalAmount"}}},
		}}},
	}
}

func (s *mongoReports) OrdersByStatus(ctx context.Context, r TimeRange) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: rangeMatch(r, false)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$orderStatus"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := s.aggregate(ctx, ordersCollection, pipeline, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func salesSeriesPipeline(r TimeRange, g Granularity) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: rangeMatch(r, true)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: g.mongoFormat()},
				{Key: "date", Value: "$createdAt"},
			}}}},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: "$totalAmount"}}},
			{Key: "orders", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

func (s *mongoReports) SalesSeries(ctx context.Context, r TimeRange, g Granularity) ([]SalesPoint, error) {
	points := []SalesPoint{}
	if err := s.aggregate(ctx, ordersCollection, salesSeriesPipeline(r, g), &points); err != nil {
		return nil, err
	}
	for i := range points {
		points[i].Revenue = models.Sum(points[i].Revenue)
	}
	return points, nil
}

// lineRevenue is price × quantity of an unwound order line.
var lineRevenue = bson.D{{Key: "$multiply", Value: bson.A{"$items.price", "$items.quantity"}}}

func topProductsPipeline(r TimeRange, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: rangeMatch(r, true)}},
		{{Key: "$unwind", Value: "$items"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$items.product"},
			{Key: "name", Value: bson.D{{Key: "$first", Value: "$items.name"}}},
			{Key: "quantity", Value: bson.D{{Key: "$sum", Value: "$items.quantity"}}},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: lineRevenue}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "quantity", Value: -1}, {Key: "revenue", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: productsCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "product"},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "quantity", Value: 1},
			{Key: "revenue", Value: 1},
			{Key: "name", Value: bson.D{{Key: "$ifNull", Value: bson.A{
				bson.D{{Key: "$arrayElemAt", Value: bson.A{"$product.name", 0}}},
				"$name",
			}}}},
		}}},
	}
}

func (s *mongoReports) TopProducts(ctx context.Context, r TimeRange, limit int) ([]ProductSales, error) {
	rows := []ProductSales{}
	if err := s.aggregate(ctx, ordersCollection, topProductsPipeline(r, limit), &rows); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Revenue = models.Sum(rows[i].Revenue)
	}
	return rows, nil
}

func (s *mongoReports) CategorySales(ctx context.Context, r TimeRange) ([]CategorySales, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: rangeMatch(r, true)}},
		{{Key: "$unwind", Value: "$items"}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: productsCollection},
			{Key: "localField", Value: "items.product"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "product"},
		}}},
		{{Key: "$unwind", Value: "$product"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$product.category"},
			{Key: "quantity", Value: bson.D{{Key: "$sum", Value: "$items.quantity"}}},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: lineRevenue}}},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: categoriesCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "category"},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "quantity", Value: 1},
			{Key: "revenue", Value: 1},
			{Key: "name", Value: bson.D{{Key: "$ifNull", Value: bson.A{
				bson.D{{Key: "$arrayElemAt", Value: bson.A{"$category.name", 0}}},
				"Uncategorized",
			}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "revenue", Value: -1}}}},
	}
	rows := []CategorySales{}
	if err := s.aggregate(ctx, ordersCollection, pipeline, &rows); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Revenue = models.Sum(rows[i].Revenue)
	}
	return rows, nil
}

func (s *mongoReports) TopCustomers(ctx context.Context, r TimeRange, limit int) ([]CustomerSales, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: rangeMatch(r, true)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$user"},
			{Key: "orders", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "spent", Value: bson.D{{Key: "$sum", Value: "$totalAmount"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "spent", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: usersCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "user"},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "orders", Value: 1},
			{Key: "spent", Value: 1},
			{Key: "name", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$user.name", 0}}}},
			{Key: "email", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$user.email", 0}}}},
		}}},
	}
	rows := []CustomerSales{}
	if err := s.aggregate(ctx, ordersCollection, pipeline, &rows); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Spent = models.Sum(rows[i].Spent)
	}
	return rows, nil
}

func (s *mongoReports) NewCustomers(ctx context.Context, r TimeRange) ([]CountPoint, error) {
	match := rangeMatch(r, false)
	match["role"] = models.RoleCustomer
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: ByMonth.mongoFormat()},
				{Key: "date", Value: "$createdAt"},
			}}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
	points := []CountPoint{}
	if err := s.aggregate(ctx, usersCollection, pipeline, &points); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *mongoReports) LowStock(ctx context.Context, threshold, limit int) ([]models.Product, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "stock", Value: 1}, {Key: "name", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := s.db.Collection(productsCollection).Find(ctx, bson.M{"stock": bson.M{"$lte": threshold}}, opts)
	if err != nil {
		return nil, err
	}
	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}
