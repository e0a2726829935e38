package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"

	"github.com/tealeg/xlsx"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxSheetUpload = 10 << 20

var productSheetHeaders = []string{
	"ID", "Name", "Description", "Brand", "Price", "Stock",
	"Discount", "Category", "Categories", "Featured", "Active", "Images",
}

// ExportProducts streams the whole catalog as an xlsx workbook
func (pc *ProductController) ExportProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	products, err := pc.Store.Products().All(ctx)
	if err != nil {
		utils.WriteServerError(w, "Failed to fetch products", err)
		return
	}

	file, err := buildProductSheet(products)
	if err != nil {
		utils.WriteServerError(w, "Failed to create Excel sheet", err)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=products.xlsx")
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.WriteHeader(http.StatusOK)
	if err := file.Write(w); err != nil {
		log.Printf("write product export: %v", err)
	}
}

func buildProductSheet(products []models.Product) (*xlsx.File, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Products")
	if err != nil {
		return nil, err
	}

	header := sheet.AddRow()
	for _, h := range productSheetHeaders {
		header.AddCell().SetValue(h)
	}

	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetValue(p.ID.Hex())
		row.AddCell().SetValue(p.Name)
		row.AddCell().SetValue(p.Description)
		row.AddCell().SetValue(p.Brand)
		row.AddCell().SetValue(p.Price)
		row.AddCell().SetValue(p.Stock)
		row.AddCell().SetValue(p.Discount)
		row.AddCell().SetValue(p.Category.Hex())
		var extra []string
		for _, c := range p.Categories {
			extra = append(extra, c.Hex())
		}
		row.AddCell().SetValue(strings.Join(extra, ","))
		row.AddCell().SetValue(strconv.FormatBool(p.IsFeatured))
		row.AddCell().SetValue(strconv.FormatBool(p.IsActive))
		row.AddCell().SetValue(strings.Join(p.Images, ","))
	}
	return file, nil
}

type importResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// ImportProducts reads an xlsx workbook in the export layout. Rows whose ID
// matches an existing product update it; other rows create new products.
func (pc *ProductController) ImportProducts(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxSheetUpload); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Excel file is required")
		return
	}
	upload, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Excel file is required")
		return
	}
	defer upload.Close()

	xlFile, err := xlsx.OpenReaderAt(upload, header.Size)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Failed to parse Excel file")
		return
	}
	if len(xlFile.Sheets) == 0 || xlFile.Sheets[0].MaxRow < 2 {
		utils.WriteError(w, http.StatusBadRequest, "Excel file is empty or missing header row")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 4*requestTimeout)
	defer cancel()

	result := importResult{}
	sheet := xlFile.Sheets[0]
	for i := 1; i < len(sheet.Rows); i++ {
		if rowEmpty(sheet.Rows[i]) {
			continue
		}
		line := i + 1
		product, existing, err := pc.productFromRow(ctx, sheet.Rows[i])
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, "row "+strconv.Itoa(line)+": "+err.Error())
			continue
		}
		if existing {
			err = pc.Store.Products().Update(ctx, product)
		} else {
			err = pc.Store.Products().Create(ctx, product)
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, "row "+strconv.Itoa(line)+": "+err.Error())
			continue
		}
		if existing {
			result.Updated++
		} else {
			result.Created++
		}
	}

	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "Import completed", "result": result})
}

func rowEmpty(row *xlsx.Row) bool {
	if row == nil {
		return true
	}
	for _, cell := range row.Cells {
		if strings.TrimSpace(cell.String()) != "" {
			return false
		}
	}
	return true
}

// productFromRow builds the product a sheet row describes. existing is true
// when the row's ID names a stored product, which is then updated in place.
func (pc *ProductController) productFromRow(ctx context.Context, row *xlsx.Row) (*models.Product, bool, error) {
	get := func(index int) string {
		if row != nil && index < len(row.Cells) {
			return strings.TrimSpace(row.Cells[index].String())
		}
		return ""
	}

	product := &models.Product{IsActive: true, Images: []string{}}
	existing := false
	if raw := get(0); raw != "" {
		if id, err := primitive.ObjectIDFromHex(raw); err == nil {
			found, err := pc.Store.Products().FindByID(ctx, id)
			switch {
			case err == nil:
				product, existing = found, true
			case !errors.Is(err, store.ErrNotFound):
				return nil, false, err
			}
		}
	}

	product.Name = get(1)
	product.Description = get(2)
	product.Brand = get(3)
	var err error
	if product.Price, err = strconv.ParseFloat(get(4), 64); err != nil {
		return nil, false, errors.New("invalid price")
	}
	if raw := get(5); raw != "" {
		stock, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false, errors.New("invalid stock")
		}
		product.Stock = int(stock)
	}
	if raw := get(6); raw != "" {
		if product.Discount, err = strconv.ParseFloat(raw, 64); err != nil {
			return nil, false, errors.New("invalid discount")
		}
	}
	if product.Category, err = primitive.ObjectIDFromHex(get(7)); err != nil {
		return nil, false, errors.New("invalid category")
	}
	product.Categories = nil
	for _, part := range strings.Split(get(8), ",") {
		if id, err := primitive.ObjectIDFromHex(strings.TrimSpace(part)); err == nil {
			product.Categories = append(product.Categories, id)
		}
	}
	if raw := get(9); raw != "" {
		product.IsFeatured, _ = strconv.ParseBool(raw)
	}
	if raw := get(10); raw != "" {
		product.IsActive, _ = strconv.ParseBool(raw)
	}
	product.Images = []string{}
	for _, img := range strings.Split(get(11), ",") {
		if img = strings.TrimSpace(img); img != "" {
			product.Images = append(product.Images, img)
		}
	}

	if err := product.Validate(); err != nil {
		return nil, false, err
	}
	ok, err := categoriesExist(ctx, pc.Store.Categories(), product)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, errors.New("category not found")
	}
	return product, existing, nil
}
