package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProductController handles product-related requests
type ProductController struct {
	Store store.Store
}

// NewProductController creates a new ProductController
func NewProductController(s store.Store) *ProductController {
	return &ProductController{Store: s}
}

// productView adds the computed sale price to a product
type productView struct {
	models.Product
	FinalPrice float64 `json:"finalPrice"`
}

func viewProduct(p models.Product) productView {
	return productView{Product: p, FinalPrice: p.FinalPrice()}
}

func viewProducts(products []models.Product) []productView {
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, viewProduct(p))
	}
	return out
}

// productFilter reads the listing query. ok is false when a category was
// named but does not exist, in which case nothing can match.
func (pc *ProductController) productFilter(ctx context.Context, r *http.Request, activeOnly bool) (f store.ProductFilter, ok bool, err error) {
	q := r.URL.Query()
	f = store.ProductFilter{
		Search:     strings.TrimSpace(q.Get("search")),
		Sort:       q.Get("sort"),
		ActiveOnly: activeOnly,
	}
	if f.MinPrice, err = queryFloat(r, "minPrice"); err != nil {
		return f, false, err
	}
	if f.MaxPrice, err = queryFloat(r, "maxPrice"); err != nil {
		return f, false, err
	}
	if f.MinRating, err = queryFloat(r, "rating"); err != nil {
		return f, false, err
	}
	if f.Featured, err = queryBool(r, "featured"); err != nil {
		return f, false, err
	}

	if ref := strings.TrimSpace(q.Get("category")); ref != "" {
		cat, err := resolveCategory(ctx, pc.Store.Categories(), ref)
		if errors.Is(err, store.ErrNotFound) {
			return f, false, nil
		}
		if err != nil {
			return f, false, err
		}
		children, err := pc.Store.Categories().Children(ctx, cat.ID)
		if err != nil {
			return f, false, err
		}
		f.CategoryIDs = append(f.CategoryIDs, cat.ID)
		for _, child := range children {
			f.CategoryIDs = append(f.CategoryIDs, child.ID)
		}
	}
	return f, true, nil
}

func (pc *ProductController) list(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	ctx, cancel := requestContext(r)
	defer cancel()

	page, limit := utils.ParsePagination(r, 12)
	filter, ok, err := pc.productFilter(ctx, r, activeOnly)
	if err != nil {
		writeQueryError(w, err, "Error fetching products")
		return
	}

	products := []models.Product{}
	var total int64
	if ok {
		products, total, err = pc.Store.Products().List(ctx, filter, store.Page{Page: page, Limit: limit})
		if err != nil {
			utils.WriteServerError(w, "Error fetching products", err)
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{
		"products":   viewProducts(products),
		"pagination": utils.NewPagination(page, limit, total),
	})
}

// GetProducts lists active products with filters, search and paging
func (pc *ProductController) GetProducts(w http.ResponseWriter, r *http.Request) {
	pc.list(w, r, true)
}

// AdminGetProducts lists every product, including inactive ones
func (pc *ProductController) AdminGetProducts(w http.ResponseWriter, r *http.Request) {
	pc.list(w, r, false)
}

// GetFeaturedProducts returns the newest active featured products
func (pc *ProductController) GetFeaturedProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	limit := queryInt(r, "limit", 8)
	if limit > utils.MaxPageLimit {
		limit = utils.MaxPageLimit
	}
	featured := true
	products, _, err := pc.Store.Products().List(ctx, store.ProductFilter{
		Featured:   &featured,
		ActiveOnly: true,
		Sort:       store.SortNewest,
	}, store.Page{Page: 1, Limit: limit})
	if err != nil {
		utils.WriteServerError(w, "Error fetching products", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"products": viewProducts(products)})
}

// GetProductByID retrieves a single active product by ID
func (pc *ProductController) GetProductByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	product, err := pc.Store.Products().FindByID(ctx, id)
	if err != nil {
		lookupError(w, err, "Product not found")
		return
	}
	if !product.IsActive {
		utils.WriteError(w, http.StatusNotFound, "Product not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, viewProduct(*product))
}

// productInput is the writable part of a product. Nil fields are left unchanged on update.
type productInput struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	Brand       *string               `json:"brand"`
	Price       *float64              `json:"price"`
	Stock       *int                  `json:"stock"`
	Discount    *float64              `json:"discount"`
	Images      []string              `json:"images"`
	Category    *primitive.ObjectID   `json:"category"`
	Categories  *[]primitive.ObjectID `json:"categories"`
	IsFeatured  *bool                 `json:"isFeatured"`
	IsActive    *bool                 `json:"isActive"`
}

func (in *productInput) apply(p *models.Product) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Brand != nil {
		p.Brand = *in.Brand
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Discount != nil {
		p.Discount = *in.Discount
	}
	if in.Images != nil {
		p.Images = in.Images
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Categories != nil {
		p.Categories = *in.Categories
	}
	if in.IsFeatured != nil {
		p.IsFeatured = *in.IsFeatured
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// categoriesExist reports whether every category the product is filed under exists
func categoriesExist(ctx context.Context, categories store.CategoryStore, p *models.Product) (bool, error) {
	ids := append([]primitive.ObjectID{p.Category}, p.Categories...)
	for _, id := range ids {
		if _, err := categories.FindByID(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}

func (pc *ProductController) validateAndCheck(ctx context.Context, w http.ResponseWriter, p *models.Product) bool {
	if err := p.Validate(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	exists, err := categoriesExist(ctx, pc.Store.Categories(), p)
	if err != nil {
		utils.WriteServerError(w, "Database error", err)
		return false
	}
	if !exists {
		utils.WriteError(w, http.StatusBadRequest, "Category not found")
		return false
	}
	return true
}

// CreateProduct handles adding a new product (Admin only)
func (pc *ProductController) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in productInput
	if !utils.DecodeJSON(w, r, &in) {
		return
	}
	product := models.Product{IsActive: true, Images: []string{}}
	in.apply(&product)

	ctx, cancel := requestContext(r)
	defer cancel()

	if !pc.validateAndCheck(ctx, w, &product) {
		return
	}
	if err := pc.Store.Products().Create(ctx, &product); err != nil {
		utils.WriteServerError(w, "Error creating product", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, viewProduct(product))
}

// UpdateProduct handles updating a product (Admin only)
func (pc *ProductController) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	var in productInput
	if !utils.DecodeJSON(w, r, &in) {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	product, err := pc.Store.Products().FindByID(ctx, id)
	if err != nil {
		lookupError(w, err, "Product not found")
		return
	}
	in.apply(product)
	if !pc.validateAndCheck(ctx, w, product) {
		return
	}
	if err := pc.Store.Products().Update(ctx, product); err != nil {
		lookupError(w, err, "Product not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, viewProduct(*product))
}

// DeleteProduct handles deleting a product (Admin only)
func (pc *ProductController) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	if err := pc.Store.Products().Delete(ctx, id); err != nil {
		lookupError(w, err, "Product not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "Product deleted successfully"})
}
