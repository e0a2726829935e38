package store

import (
	"context"
	"time"

	"storefront-api/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TimeRange bounds a report. A zero From or To leaves that side open; To is exclusive.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

type Granularity string

const (
	ByDay   Granularity = "day"
	ByMonth Granularity = "month"
)

// Layout is the Go time layout matching the period keys of a series.
func (g Granularity) Layout() string {
	if g == ByMonth {
		return "2006-01"
	}
	return "2006-01-02"
}

func (g Granularity) mongoFormat() string {
	if g == ByMonth {
		return "%Y-%m"
	}
	return "%Y-%m-%d"
}

type OrderTotals struct {
	Orders  int64   `json:"orders"`
	Revenue float64 `json:"revenue"`
}

type SalesPoint struct {
	Period  string  `bson:"_id" json:"period"`
	Revenue float64 `bson:"revenue" json:"revenue"`
	Orders  int64   `bson:"orders" json:"orders"`
}

type CountPoint struct {
	Period string `bson:"_id" json:"period"`
	Count  int64  `bson:"count" json:"count"`
}

type ProductSales struct {
	ProductID primitive.ObjectID `bson:"_id" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Quantity  int64              `bson:"quantity" json:"quantity"`
	Revenue   float64            `bson:"revenue" json:"revenue"`
}

type CategorySales struct {
	CategoryID primitive.ObjectID `bson:"_id" json:"categoryId"`
	Name       string             `bson:"name" json:"name"`
	Quantity   int64              `bson:"quantity" json:"quantity"`
	Revenue    float64            `bson:"revenue" json:"revenue"`
}

type CustomerSales struct {
	UserID primitive.ObjectID `bson:"_id" json:"userId"`
	Name   string             `bson:"name" json:"name"`
	Email  string             `bson:"email" json:"email"`
	Orders int64              `bson:"orders" json:"orders"`
	Spent  float64            `bson:"spent" json:"spent"`
}

// Reports are read-only aggregates over the collections. Revenue figures
// exclude cancelled orders. Every call recomputes from the documents.
type Reports interface {
	CountCustomers(ctx context.Context, r TimeRange) (int64, error)
	CountProducts(ctx context.Context) (int64, error)
	CountCategories(ctx context.Context) (int64, error)
	OrderTotals(ctx context.Context, r TimeRange) (OrderTotals, error)
	OrdersByStatus(ctx context.Context, r TimeRange) (map[string]int64, error)
	SalesSeries(ctx context.Context, r TimeRange, g Granularity) ([]SalesPoint, error)
	TopProducts(ctx context.Context, r TimeRange, limit int) ([]ProductSales, error)
	CategorySales(ctx context.Context, r TimeRange) ([]CategorySales, error)
	TopCustomers(ctx context.Context, r TimeRange, limit int) ([]CustomerSales, error)
	NewCustomers(ctx context.Context, r TimeRange) ([]CountPoint, error)
	LowStock(ctx context.Context, threshold, limit int) ([]models.Product, error)
}
