// Package store persists the storefront documents. MongoStore is the
// production backend; MemoryStore keeps everything in process and serves
// development runs without a database, and tests.
package store

import (
	"context"
	"errors"
	"time"

	"storefront-api/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("store: document not found")
	ErrDuplicate = errors.New("store: duplicate key")
)

// Store groups the per-collection stores.
type Store interface {
	Users() UserStore
	Products() ProductStore
	Categories() CategoryStore
	Orders() OrderStore
	Reviews() ReviewStore
	Wishlists() WishlistStore
	Carts() CartStore
	Otps() OtpStore
	Reports() Reports

	// Kind names the backend, for health output.
	Kind() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Page selects a 1-based page of Limit documents.
type Page struct {
	Page  int
	Limit int
}

func (p Page) Skip() int64 {
	if p.Page < 1 {
		return 0
	}
	return int64((p.Page - 1) * p.Limit)
}

type UserFilter struct {
	Search   string // matched against name and email
	Role     string
	Blocked  *bool
	SortBy   string // createdAt, name, email
	SortDesc bool
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByEmailOrGoogleID(ctx context.Context, email, googleID string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, f UserFilter, p Page) ([]models.User, int64, error)
}

const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
	SortName      = "name"
)

type ProductFilter struct {
	Search      string
	CategoryIDs []primitive.ObjectID // primary or secondary category in this set
	MinPrice    *float64
	MaxPrice    *float64
	MinRating   *float64
	Featured    *bool
	ActiveOnly  bool
	Sort        string
}

type ProductStore interface {
	Create(ctx context.Context, p *models.Product) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error)
	Update(ctx context.Context, p *models.Product) error
	// SetRating writes only the review aggregates, leaving other fields alone.
	SetRating(ctx context.Context, id primitive.ObjectID, rating float64, numReviews int) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, f ProductFilter, p Page) ([]models.Product, int64, error)
	All(ctx context.Context) ([]models.Product, error)
	// CountInCategory counts products referencing the category directly or
	// through the secondary category list.
	CountInCategory(ctx context.Context, categoryID primitive.ObjectID) (int64, error)
}

type CategoryStore interface {
	Create(ctx context.Context, c *models.Category) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Category, error)
	FindBySlug(ctx context.Context, slug string) (*models.Category, error)
	Update(ctx context.Context, c *models.Category) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, activeOnly bool) ([]models.Category, error)
	Children(ctx context.Context, parent primitive.ObjectID) ([]models.Category, error)
}

type OrderFilter struct {
	UserID        *primitive.ObjectID
	OrderStatus   string
	PaymentStatus string
	From          *time.Time // inclusive
	To            *time.Time // exclusive
	MinAmount     *float64
	MaxAmount     *float64
}

type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	Update(ctx context.Context, o *models.Order) error
	List(ctx context.Context, f OrderFilter, p Page) ([]models.Order, int64, error)
	CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

type ReviewStore interface {
	Create(ctx context.Context, r *models.Review) error
	ListByProduct(ctx context.Context, productID primitive.ObjectID, p Page) ([]models.Review, int64, error)
	// Summary returns the average rating and review count of a product.
	Summary(ctx context.Context, productID primitive.ObjectID) (float64, int, error)
}

type WishlistStore interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*models.Wishlist, error)
	Save(ctx context.Context, w *models.Wishlist) error
}

type CartStore interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	Save(ctx context.Context, c *models.Cart) error
	Delete(ctx context.Context, userID primitive.ObjectID) error
}

type OtpStore interface {
	// Replace removes every code for o.Email and o.Purpose and stores o.
	Replace(ctx context.Context, o *models.Otp) error
	Find(ctx context.Context, email, purpose string) (*models.Otp, error)
	// RecordFailure bumps the failed-attempt counter and returns the new count.
	RecordFailure(ctx context.Context, id primitive.ObjectID) (int, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}
