package controllers

import (
	"errors"
	"net/http"
	"time"

	"storefront-api/store"
	"storefront-api/utils"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var errUnknownPeriod = errors.New("period must be one of 7d, 30d, 90d, 12m")

// analyticsWindow maps a period name onto a report range ending now
func analyticsWindow(period string, now time.Time) (store.TimeRange, store.Granularity, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case "7d":
		return store.TimeRange{From: today.AddDate(0, 0, -6)}, store.ByDay, nil
	case "", "30d":
		return store.TimeRange{From: today.AddDate(0, 0, -29)}, store.ByDay, nil
	case "90d":
		return store.TimeRange{From: today.AddDate(0, 0, -89)}, store.ByDay, nil
	case "12m":
		return store.TimeRange{From: monthStart(now).AddDate(0, -11, 0)}, store.ByMonth, nil
	}
	return store.TimeRange{}, "", errUnknownPeriod
}

// AnalyticsController serves the sales reports
type AnalyticsController struct {
	Store store.Store
	Now   func() time.Time
}

func NewAnalyticsController(s store.Store) *AnalyticsController {
	return &AnalyticsController{Store: s, Now: time.Now}
}

func (an *AnalyticsController) window(w http.ResponseWriter, r *http.Request) (string, store.TimeRange, store.Granularity, bool) {
	period := r.URL.Query().Get("period")
	tr, g, err := analyticsWindow(period, an.Now())
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return "", tr, g, false
	}
	if period == "" {
		period = "30d"
	}
	return period, tr, g, true
}

// Sales returns the revenue series and totals for the period
func (an *AnalyticsController) Sales(w http.ResponseWriter, r *http.Request) {
	period, tr, gran, ok := an.window(w, r)
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	var series []store.SalesPoint
	var totals store.OrderTotals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		series, err = an.Store.Reports().SalesSeries(gctx, tr, gran)
		return err
	})
	g.Go(func() (err error) {
		totals, err = an.Store.Reports().OrderTotals(gctx, tr)
		return err
	})
	if err := g.Wait(); err != nil {
		utils.WriteServerError(w, "Error fetching sales", err)
		return
	}
	avg := 0.0
	if totals.Orders > 0 {
		avg = decimal.NewFromFloat(totals.Revenue).Div(decimal.NewFromInt(totals.Orders)).Round(2).InexactFloat64()
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{
		"period":      period,
		"granularity": gran,
		"series":      series,
		"totals": utils.M{
			"revenue":           totals.Revenue,
			"orders":            totals.Orders,
			"averageOrderValue": avg,
		},
	})
}

func (an *AnalyticsController) TopProducts(w http.ResponseWriter, r *http.Request) {
	period, tr, _, ok := an.window(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 10)
	if limit > 50 {
		limit = 50
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	products, err := an.Store.Reports().TopProducts(ctx, tr, limit)
	if err != nil {
		utils.WriteServerError(w, "Error fetching top products", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"period": period, "products": products})
}

// Customers reports new sign-ups per month and the biggest spenders
func (an *AnalyticsController) Customers(w http.ResponseWriter, r *http.Request) {
	period, tr, _, ok := an.window(w, r)
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	var signups []store.CountPoint
	var top []store.CustomerSales
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		signups, err = an.Store.Reports().NewCustomers(gctx, tr)
		return err
	})
	g.Go(func() (err error) {
		top, err = an.Store.Reports().TopCustomers(gctx, tr, 10)
		return err
	})
	if err := g.Wait(); err != nil {
		utils.WriteServerError(w, "Error fetching customers", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{
		"period":       period,
		"newCustomers": signups,
		"topCustomers": top,
	})
}

func (an *AnalyticsController) Categories(w http.ResponseWriter, r *http.Request) {
	period, tr, _, ok := an.window(w, r)
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	rows, err := an.Store.Reports().CategorySales(ctx, tr)
	if err != nil {
		utils.WriteServerError(w, "Error fetching category sales", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"period": period, "categories": rows})
}
