package controllers

import (
	"net/http"
	"strings"
	"time"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const (
	lowStockThreshold = 5
	dashboardListSize = 5
	dashboardMonths   = 6
)

// AdminController serves the admin dashboard, user management and the order desk
type AdminController struct {
	Store store.Store
	Now   func() time.Time
}

func NewAdminController(s store.Store) *AdminController {
	return &AdminController{Store: s, Now: time.Now}
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// growthPercent compares two periods. With nothing in the previous period
// any activity counts as 100% growth.
func growthPercent(cur, prev float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	d := decimal.NewFromFloat(cur).Sub(decimal.NewFromFloat(prev))
	return d.Div(decimal.NewFromFloat(prev)).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

type periodStats struct {
	Revenue   float64 `json:"revenue"`
	Orders    int64   `json:"orders"`
	Customers int64   `json:"customers"`
}

type dashboard struct {
	Overview struct {
		TotalCustomers  int64   `json:"totalCustomers"`
		TotalProducts   int64   `json:"totalProducts"`
		TotalCategories int64   `json:"totalCategories"`
		TotalOrders     int64   `json:"totalOrders"`
		TotalRevenue    float64 `json:"totalRevenue"`
	} `json:"overview"`
	CurrentMonth  periodStats `json:"currentMonth"`
	PreviousMonth periodStats `json:"previousMonth"`
	Growth        struct {
		Revenue   float64 `json:"revenue"`
		Orders    float64 `json:"orders"`
		Customers float64 `json:"customers"`
	} `json:"growth"`
	OrdersByStatus   map[string]int64     `json:"ordersByStatus"`
	SalesByMonth     []store.SalesPoint   `json:"salesByMonth"`
	TopProducts      []store.ProductSales `json:"topProducts"`
	RecentOrders     []models.Order       `json:"recentOrders"`
	LowStockProducts []models.Product     `json:"lowStockProducts"`
}

// Dashboard gathers the admin overview. The reads are independent and run concurrently.
func (ac *AdminController) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	now := ac.Now().UTC()
	thisMonth := store.TimeRange{From: monthStart(now)}
	lastMonth := store.TimeRange{From: thisMonth.From.AddDate(0, -1, 0), To: thisMonth.From}
	sixMonths := store.TimeRange{From: thisMonth.From.AddDate(0, -(dashboardMonths - 1), 0)}

	reports := ac.Store.Reports()
	var d dashboard
	var allTime store.OrderTotals

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Overview.TotalCustomers, err = reports.CountCustomers(gctx, store.TimeRange{})
		return err
	})
	g.Go(func() (err error) {
		d.Overview.TotalProducts, err = reports.CountProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Overview.TotalCategories, err = reports.CountCategories(gctx)
		return err
	})
	g.Go(func() (err error) {
		allTime, err = reports.OrderTotals(gctx, store.TimeRange{})
		return err
	})
	g.Go(func() error {
		t, err := reports.OrderTotals(gctx, thisMonth)
		d.CurrentMonth.Revenue, d.CurrentMonth.Orders = t.Revenue, t.Orders
		return err
	})
	g.Go(func() error {
		t, err := reports.OrderTotals(gctx, lastMonth)
		d.PreviousMonth.Revenue, d.PreviousMonth.Orders = t.Revenue, t.Orders
		return err
	})
	g.Go(func() (err error) {
		d.CurrentMonth.Customers, err = reports.CountCustomers(gctx, thisMonth)
		return err
	})
	g.Go(func() (err error) {
		d.PreviousMonth.Customers, err = reports.CountCustomers(gctx, lastMonth)
		return err
	})
	g.Go(func() (err error) {
		d.OrdersByStatus, err = reports.OrdersByStatus(gctx, store.TimeRange{})
		return err
	})
	g.Go(func() (err error) {
		d.SalesByMonth, err = reports.SalesSeries(gctx, sixMonths, store.ByMonth)
		return err
	})
	g.Go(func() (err error) {
		d.TopProducts, err = reports.TopProducts(gctx, store.TimeRange{}, dashboardListSize)
		return err
	})
	g.Go(func() (err error) {
		d.RecentOrders, _, err = ac.Store.Orders().List(gctx, store.OrderFilter{}, store.Page{Page: 1, Limit: dashboardListSize})
		return err
	})
	g.Go(func() (err error) {
		d.LowStockProducts, err = reports.LowStock(gctx, lowStockThreshold, 10)
		return err
	})
	if err := g.Wait(); err != nil {
		utils.WriteServerError(w, "Error building dashboard", err)
		return
	}

	d.Overview.TotalOrders = allTime.Orders
	d.Overview.TotalRevenue = allTime.Revenue
	d.Growth.Revenue = growthPercent(d.CurrentMonth.Revenue, d.PreviousMonth.Revenue)
	d.Growth.Orders = growthPercent(float64(d.CurrentMonth.Orders), float64(d.PreviousMonth.Orders))
	d.Growth.Customers = growthPercent(float64(d.CurrentMonth.Customers), float64(d.PreviousMonth.Customers))
	utils.WriteJSON(w, http.StatusOK, d)
}

type adminUserRow struct {
	models.User
	OrderCount int64 `json:"orderCount"`
}

// GetUsers lists accounts with their order counts
func (ac *AdminController) GetUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	blocked, err := queryBool(r, "isBlocked")
	if err != nil {
		writeQueryError(w, err, "")
		return
	}
	filter := store.UserFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Role:     q.Get("role"),
		Blocked:  blocked,
		SortBy:   "createdAt",
		SortDesc: !strings.EqualFold(q.Get("sortOrder"), "asc"),
	}
	if filter.Role != "" && !models.IsValidRole(filter.Role) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid role")
		return
	}
	switch sortBy := q.Get("sortBy"); sortBy {
	case "", "createdAt":
	case "name", "email":
		filter.SortBy = sortBy
	default:
		utils.WriteError(w, http.StatusBadRequest, "Invalid sortBy")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	page, limit := utils.ParsePagination(r, 10)
	users, total, err := ac.Store.Users().List(ctx, filter, store.Page{Page: page, Limit: limit})
	if err != nil {
		utils.WriteServerError(w, "Error fetching users", err)
		return
	}
	rows := make([]adminUserRow, 0, len(users))
	for _, u := range users {
		n, err := ac.Store.Orders().CountByUser(ctx, u.ID)
		if err != nil {
			utils.WriteServerError(w, "Error counting orders", err)
			return
		}
		rows = append(rows, adminUserRow{User: u, OrderCount: n})
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{
		"users":      rows,
		"pagination": utils.NewPagination(page, limit, total),
	})
}

func (ac *AdminController) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	user, err := ac.Store.Users().FindByID(ctx, id)
	if err != nil {
		lookupError(w, err, "User not found")
		return
	}
	n, err := ac.Store.Orders().CountByUser(ctx, id)
	if err != nil {
		utils.WriteServerError(w, "Error counting orders", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"user": adminUserRow{User: *user, OrderCount: n}})
}

// UpdateUser changes role and account flags. Admins cannot demote or block themselves.
func (ac *AdminController) UpdateUser(w http.ResponseWriter, r *http.Request) {
	_, self, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}
	var req struct {
		Role       *string `json:"role"`
		IsVerified *bool   `json:"isVerified"`
		IsBlocked  *bool   `json:"isBlocked"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	if req.Role != nil && !models.IsValidRole(*req.Role) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid role")
		return
	}
	if id == self {
		if req.Role != nil && *req.Role != models.RoleAdmin {
			utils.WriteError(w, http.StatusBadRequest, "You cannot change your own role")
			return
		}
		if req.IsBlocked != nil && *req.IsBlocked {
			utils.WriteError(w, http.StatusBadRequest, "You cannot block your own account")
			return
		}
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	user, err := ac.Store.Users().FindByID(ctx, id)
	if err != nil {
		lookupError(w, err, "User not found")
		return
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsVerified != nil {
		user.IsVerified = *req.IsVerified
	}
	if req.IsBlocked != nil {
		user.IsBlocked = *req.IsBlocked
	}
	if err := ac.Store.Users().Update(ctx, user); err != nil {
		lookupError(w, err, "User not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "User updated", "user": user})
}

// DeleteUser removes an account that has never ordered. The order check and
// the delete are separate store calls.
func (ac *AdminController) DeleteUser(w http.ResponseWriter, r *http.Request) {
	_, self, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}
	if id == self {
		utils.WriteError(w, http.StatusBadRequest, "You cannot delete your own account")
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	if _, err := ac.Store.Users().FindByID(ctx, id); err != nil {
		lookupError(w, err, "User not found")
		return
	}
	n, err := ac.Store.Orders().CountByUser(ctx, id)
	if err != nil {
		utils.WriteServerError(w, "Error counting orders", err)
		return
	}
	if n > 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.M{
			"message":    "Cannot delete user with existing orders",
			"orderCount": n,
		})
		return
	}
	if err := ac.Store.Users().Delete(ctx, id); err != nil {
		lookupError(w, err, "User not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "User deleted successfully"})
}

const dateLayout = "2006-01-02"

// orderFilterFromQuery reads the admin order desk filters. endDate is
// inclusive, so the bound handed to the store is the following midnight.
func orderFilterFromQuery(r *http.Request) (store.OrderFilter, error) {
	q := r.URL.Query()
	f := store.OrderFilter{
		OrderStatus:   q.Get("status"),
		PaymentStatus: q.Get("paymentStatus"),
	}
	if f.OrderStatus != "" && !models.IsValidOrderStatus(f.OrderStatus) {
		return f, &queryError{"status"}
	}
	if f.PaymentStatus != "" && !models.IsValidPaymentStatus(f.PaymentStatus) {
		return f, &queryError{"paymentStatus"}
	}
	if raw := q.Get("startDate"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, &queryError{"startDate"}
		}
		f.From = &t
	}
	if raw := q.Get("endDate"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, &queryError{"endDate"}
		}
		end := t.AddDate(0, 0, 1)
		f.To = &end
	}
	var err error
	if f.MinAmount, err = queryFloat(r, "minAmount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = queryFloat(r, "maxAmount"); err != nil {
		return f, err
	}
	if raw := q.Get("userId"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return f, &queryError{"userId"}
		}
		f.UserID = &id
	}
	return f, nil
}

// GetOrders lists every order for the admin desk, newest first
func (ac *AdminController) GetOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := orderFilterFromQuery(r)
	if err != nil {
		writeQueryError(w, err, "Error fetching orders")
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	page, limit := utils.ParsePagination(r, 10)
	orders, total, err := ac.Store.Orders().List(ctx, filter, store.Page{Page: page, Limit: limit})
	if err != nil {
		utils.WriteServerError(w, "Error fetching orders", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{
		"orders":     orders,
		"pagination": utils.NewPagination(page, limit, total),
	})
}
