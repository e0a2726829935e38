package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-api/middleware"
	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const requestTimeout = 5 * time.Second

func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}

// pathID parses the {key} route variable as an ObjectID, answering 400 when malformed
func pathID(w http.ResponseWriter, r *http.Request, key, label string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)[key])
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid "+label+" ID")
		return primitive.NilObjectID, false
	}
	return id, true
}

// caller returns the authenticated user's claims and id
func caller(w http.ResponseWriter, r *http.Request) (*utils.Claims, primitive.ObjectID, bool) {
	claims, ok := middleware.ClaimsFrom(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, primitive.NilObjectID, false
	}
	id, err := claims.ObjectID()
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid token")
		return nil, primitive.NilObjectID, false
	}
	return claims, id, true
}

// writeQueryError answers 400 for a malformed query and 500 for anything else
func writeQueryError(w http.ResponseWriter, err error, message string) {
	var qe *queryError
	if errors.As(err, &qe) {
		utils.WriteError(w, http.StatusBadRequest, qe.Error())
		return
	}
	utils.WriteServerError(w, message, err)
}

// lookupError answers 404 with notFound for store.ErrNotFound and 500 otherwise
func lookupError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, notFound)
		return
	}
	utils.WriteServerError(w, "Database error", err)
}

// queryError marks a malformed query parameter
type queryError struct{ key string }

func (e *queryError) Error() string { return "invalid " + e.key }

func queryFloat(r *http.Request, key string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &queryError{key}
	}
	return &v, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &queryError{key}
	}
	return &v, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

// resolveCategory finds a category by ObjectID hex or by slug
func resolveCategory(ctx context.Context, categories store.CategoryStore, idOrSlug string) (*models.Category, error) {
	if id, err := primitive.ObjectIDFromHex(idOrSlug); err == nil {
		cat, err := categories.FindByID(ctx, id)
		if !errors.Is(err, store.ErrNotFound) {
			return cat, err
		}
	}
	return categories.FindBySlug(ctx, strings.ToLower(idOrSlug))
}
