package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront-api/models"
	"storefront-api/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func sheetUpload(t *testing.T, file *xlsx.File) *http.Request {
	t.Helper()
	var sheet bytes.Buffer
	require.NoError(t, file.Write(&sheet))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "products.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(sheet.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/products/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestProductSheetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	cat := &models.Category{Name: "Lighting", Slug: "lighting", IsActive: true}
	require.NoError(t, s.Categories().Create(ctx, cat))
	lamp := &models.Product{Name: "Lamp", Price: 19.99, Stock: 4, Category: cat.ID, IsActive: true, Images: []string{"/uploads/a.png", "/uploads/b.png"}}
	require.NoError(t, s.Products().Create(ctx, lamp))

	pc := NewProductController(s)

	rec := httptest.NewRecorder()
	pc.ExportProducts(rec, httptest.NewRequest(http.MethodGet, "/api/admin/products/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "products.xlsx")

	exported, err := xlsx.OpenBinary(rec.Body.Bytes())
	require.NoError(t, err)
	rows := exported.Sheets[0].Rows
	require.Len(t, rows, 2)
	assert.Equal(t, "Name", rows[0].Cells[1].String())
	assert.Equal(t, lamp.ID.Hex(), rows[1].Cells[0].String())

	// Edit the stored product and add a new one alongside a broken row
	lamp.Price = 25
	lamp.Name = "Desk Lamp"
	fresh := models.Product{Name: "Bulb", Price: 2, Stock: 100, Category: cat.ID, IsActive: true}
	broken := models.Product{Name: "Ghost", Price: 1, Category: primitive.NewObjectID(), IsActive: true}
	file, err := buildProductSheet([]models.Product{*lamp, fresh, broken})
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	pc.ImportProducts(rec, sheetUpload(t, file))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Result importResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Result.Updated)
	assert.Equal(t, 1, body.Result.Created)
	assert.Equal(t, 1, body.Result.Skipped)
	require.Len(t, body.Result.Errors, 1)
	assert.Contains(t, body.Result.Errors[0], "row 4")

	stored, err := s.Products().FindByID(ctx, lamp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp", stored.Name)
	assert.Equal(t, 25.0, stored.Price)
	assert.Equal(t, []string{"/uploads/a.png", "/uploads/b.png"}, stored.Images)

	all, err := s.Products().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestImportProductsRejectsMissingFile(t *testing.T) {
	pc := NewProductController(store.NewMemoryStore())
	rec := httptest.NewRecorder()
	pc.ImportProducts(rec, httptest.NewRequest(http.MethodPost, "/api/admin/products/import", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
