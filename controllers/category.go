package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"

	"github.com/gorilla/mux"
	"github.com/gosimple/slug"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CategoryController handles category-related requests
type CategoryController struct {
	Store store.Store
}

func NewCategoryController(s store.Store) *CategoryController {
	return &CategoryController{Store: s}
}

// GetCategories lists active categories
func (cc *CategoryController) GetCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	categories, err := cc.Store.Categories().List(ctx, true)
	if err != nil {
		utils.WriteServerError(w, "Error fetching categories", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"categories": categories})
}

type adminCategoryRow struct {
	models.Category
	ProductCount int64 `json:"productCount"`
}

// AdminGetCategories lists every category with the number of products filed under it
func (cc *CategoryController) AdminGetCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	categories, err := cc.Store.Categories().List(ctx, false)
	if err != nil {
		utils.WriteServerError(w, "Error fetching categories", err)
		return
	}
	rows := make([]adminCategoryRow, 0, len(categories))
	for _, c := range categories {
		n, err := cc.Store.Products().CountInCategory(ctx, c.ID)
		if err != nil {
			utils.WriteServerError(w, "Error counting products", err)
			return
		}
		rows = append(rows, adminCategoryRow{Category: c, ProductCount: n})
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"categories": rows})
}

// GetCategory finds an active category by id or slug, with its active children
func (cc *CategoryController) GetCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	category, err := resolveCategory(ctx, cc.Store.Categories(), mux.Vars(r)["idOrSlug"])
	if err != nil {
		lookupError(w, err, "Category not found")
		return
	}
	if !category.IsActive {
		utils.WriteError(w, http.StatusNotFound, "Category not found")
		return
	}
	children, err := cc.Store.Categories().Children(ctx, category.ID)
	if err != nil {
		utils.WriteServerError(w, "Error fetching categories", err)
		return
	}
	active := []models.Category{}
	for _, c := range children {
		if c.IsActive {
			active = append(active, c)
		}
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"category": category, "children": active})
}

type categoryInput struct {
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	Image       *string             `json:"image"`
	IsActive    *bool               `json:"isActive"`
	Parent      *primitive.ObjectID `json:"parent"`
}

// writeCategoryConflict answers a duplicate key. Distinct names can slug to
// the same value ("A & B", "A and B"), so a slug clash is reported as such.
func (cc *CategoryController) writeCategoryConflict(ctx context.Context, w http.ResponseWriter, c *models.Category) {
	existing, err := cc.Store.Categories().FindBySlug(ctx, c.Slug)
	if err == nil && existing.ID != c.ID && existing.Name != c.Name {
		utils.WriteJSON(w, http.StatusConflict, utils.M{
			"message": fmt.Sprintf("Category name %q produces the slug %q, already used by %q", c.Name, c.Slug, existing.Name),
			"field":   "slug",
		})
		return
	}
	utils.WriteJSON(w, http.StatusConflict, utils.M{
		"message": "Category with this name already exists",
		"field":   "name",
	})
}

// maxCategoryDepth bounds the parent walk
const maxCategoryDepth = 64

// checkParent verifies parent exists and that making it the parent of self
// does not close a loop in the hierarchy.
func (cc *CategoryController) checkParent(ctx context.Context, w http.ResponseWriter, self, parent primitive.ObjectID) bool {
	if parent == self {
		utils.WriteError(w, http.StatusBadRequest, "A category cannot be its own parent")
		return false
	}
	cur := parent
	for depth := 0; ; depth++ {
		c, err := cc.Store.Categories().FindByID(ctx, cur)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				if cur == parent {
					utils.WriteError(w, http.StatusBadRequest, "Parent category not found")
					return false
				}
				// dangling ancestor, the chain ends here
				return true
			}
			utils.WriteServerError(w, "Database error", err)
			return false
		}
		if c.Parent == nil {
			return true
		}
		if *c.Parent == self || depth >= maxCategoryDepth {
			utils.WriteError(w, http.StatusBadRequest, "A category cannot be nested under its own subcategory")
			return false
		}
		cur = *c.Parent
	}
}

// CreateCategory adds a category (Admin only). The slug is derived from the name.
func (cc *CategoryController) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryInput
	if !utils.DecodeJSON(w, r, &in) {
		return
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		utils.WriteError(w, http.StatusBadRequest, "Category name is required")
		return
	}

	category := models.Category{
		Name:     strings.TrimSpace(*in.Name),
		IsActive: true,
	}
	category.Slug = slug.Make(category.Name)
	if category.Slug == "" {
		utils.WriteError(w, http.StatusBadRequest, "Category name must contain letters or digits")
		return
	}
	if in.Description != nil {
		category.Description = *in.Description
	}
	if in.Image != nil {
		category.Image = *in.Image
	}
	if in.IsActive != nil {
		category.IsActive = *in.IsActive
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if in.Parent != nil && !in.Parent.IsZero() {
		if !cc.checkParent(ctx, w, primitive.NilObjectID, *in.Parent) {
			return
		}
		parent := *in.Parent
		category.Parent = &parent
	}

	if err := cc.Store.Categories().Create(ctx, &category); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			cc.writeCategoryConflict(ctx, w, &category)
			return
		}
		utils.WriteServerError(w, "Error creating category", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.M{"message": "Category created", "category": category})
}

// UpdateCategory edits a category (Admin only); renaming re-derives the slug
func (cc *CategoryController) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "category")
	if !ok {
		return
	}
	var in categoryInput
	if !utils.DecodeJSON(w, r, &in) {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	category, err := cc.Store.Categories().FindByID(ctx, id)
	if err != nil {
		lookupError(w, err, "Category not found")
		return
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			utils.WriteError(w, http.StatusBadRequest, "Category name is required")
			return
		}
		category.Name = name
		category.Slug = slug.Make(name)
		if category.Slug == "" {
			utils.WriteError(w, http.StatusBadRequest, "Category name must contain letters or digits")
			return
		}
	}
	if in.Description != nil {
		category.Description = *in.Description
	}
	if in.Image != nil {
		category.Image = *in.Image
	}
	if in.IsActive != nil {
		category.IsActive = *in.IsActive
	}
	if in.Parent != nil {
		if in.Parent.IsZero() {
			category.Parent = nil
		} else {
			if !cc.checkParent(ctx, w, id, *in.Parent) {
				return
			}
			parent := *in.Parent
			category.Parent = &parent
		}
	}

	if err := cc.Store.Categories().Update(ctx, category); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			cc.writeCategoryConflict(ctx, w, category)
			return
		}
		lookupError(w, err, "Category not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "Category updated", "category": category})
}

// DeleteCategory removes a category that no product and no child category references.
// The check and the delete are separate store calls.
func (cc *CategoryController) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "category")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	if _, err := cc.Store.Categories().FindByID(ctx, id); err != nil {
		lookupError(w, err, "Category not found")
		return
	}
	productCount, err := cc.Store.Products().CountInCategory(ctx, id)
	if err != nil {
		utils.WriteServerError(w, "Error counting products", err)
		return
	}
	if productCount > 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.M{
			"message":      "Cannot delete category with associated products",
			"productCount": productCount,
		})
		return
	}
	children, err := cc.Store.Categories().Children(ctx, id)
	if err != nil {
		utils.WriteServerError(w, "Error fetching categories", err)
		return
	}
	if len(children) > 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.M{
			"message":    "Cannot delete category with subcategories",
			"childCount": len(children),
		})
		return
	}

	if err := cc.Store.Categories().Delete(ctx, id); err != nil {
		lookupError(w, err, "Category not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "Category deleted successfully"})
}

// ToggleCategoryStatus flips the active flag (Admin only)
func (cc *CategoryController) ToggleCategoryStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "category")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	category, err := cc.Store.Categories().FindByID(ctx, id)
	if err != nil {
		lookupError(w, err, "Category not found")
		return
	}
	category.IsActive = !category.IsActive
	if err := cc.Store.Categories().Update(ctx, category); err != nil {
		lookupError(w, err, "Category not found")
		return
	}
	status := "deactivated"
	if category.IsActive {
		status = "activated"
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "Category " + status, "category": category})
}
