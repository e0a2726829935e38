package store

import (
	"context"
	"sort"

	"storefront-api/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memReports struct{ s *MemoryStore }

// sales returns the non-cancelled orders placed inside r.
// Callers must hold the read lock.
func (m memReports) sales(r TimeRange) []models.Order {
	var out []models.Order
	for _, o := range m.s.orders {
		if o.OrderStatus != models.OrderStatusCancelled && r.Contains(o.CreatedAt) {
			out = append(out, o)
		}
	}
	return out
}

func (m memReports) CountCustomers(ctx context.Context, r TimeRange) (int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var n int64
	for _, u := range m.s.users {
		if u.Role == models.RoleCustomer && r.Contains(u.CreatedAt) {
			n++
		}
	}
	return n, nil
}

func (m memReports) CountProducts(ctx context.Context) (int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return int64(len(m.s.products)), nil
}

func (m memReports) CountCategories(ctx context.Context) (int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return int64(len(m.s.categories)), nil
}

func (m memReports) OrderTotals(ctx context.Context, r TimeRange) (OrderTotals, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var totals OrderTotals
	for _, o := range m.s.orders {
		if r.Contains(o.CreatedAt) {
			totals.Orders++
		}
	}
	var amounts []float64
	for _, o := range m.sales(r) {
		amounts = append(amounts, o.TotalAmount)
	}
	totals.Revenue = models.Sum(amounts...)
	return totals, nil
}

func (m memReports) OrdersByStatus(ctx context.Context, r TimeRange) (map[string]int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := map[string]int64{}
	for _, o := range m.s.orders {
		if r.Contains(o.CreatedAt) {
			out[o.OrderStatus]++
		}
	}
	return out, nil
}

func (m memReports) SalesSeries(ctx context.Context, r TimeRange, g Granularity) ([]SalesPoint, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	byPeriod := map[string]*SalesPoint{}
	for _, o := range m.sales(r) {
		key := o.CreatedAt.UTC().Format(g.Layout())
		p, ok := byPeriod[key]
		if !ok {
			p = &SalesPoint{Period: key}
			byPeriod[key] = p
		}
		p.Orders++
		p.Revenue = models.Sum(p.Revenue, o.TotalAmount)
	}
	points := make([]SalesPoint, 0, len(byPeriod))
	for _, p := range byPeriod {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	return points, nil
}

func (m memReports) TopProducts(ctx context.Context, r TimeRange, limit int) ([]ProductSales, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	byProduct := map[primitive.ObjectID]*ProductSales{}
	revenue := map[primitive.ObjectID]*models.Tally{}
	var order []primitive.ObjectID
	for _, o := range m.sales(r) {
		for _, it := range o.Items {
			row, ok := byProduct[it.Product]
			if !ok {
				row = &ProductSales{ProductID: it.Product, Name: it.Name}
				byProduct[it.Product] = row
				revenue[it.Product] = &models.Tally{}
				order = append(order, it.Product)
			}
			row.Quantity += int64(it.Quantity)
			revenue[it.Product].AddLine(it.Price, it.Quantity)
		}
	}
	rows := make([]ProductSales, 0, len(order))
	for _, id := range order {
		row := *byProduct[id]
		row.Revenue = revenue[id].Total()
		if p, ok := m.s.products[id]; ok {
			row.Name = p.Name
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Quantity != rows[j].Quantity {
			return rows[i].Quantity > rows[j].Quantity
		}
		return rows[i].Revenue > rows[j].Revenue
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m memReports) CategorySales(ctx context.Context, r TimeRange) ([]CategorySales, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	byCategory := map[primitive.ObjectID]*CategorySales{}
	revenue := map[primitive.ObjectID]*models.Tally{}
	for _, o := range m.sales(r) {
		for _, it := range o.Items {
			p, ok := m.s.products[it.Product]
			if !ok {
				continue
			}
			row, ok := byCategory[p.Category]
			if !ok {
				row = &CategorySales{CategoryID: p.Category, Name: "Uncategorized"}
				if c, found := m.s.categories[p.Category]; found {
					row.Name = c.Name
				}
				byCategory[p.Category] = row
				revenue[p.Category] = &models.Tally{}
			}
			row.Quantity += int64(it.Quantity)
			revenue[p.Category].AddLine(it.Price, it.Quantity)
		}
	}
	rows := make([]CategorySales, 0, len(byCategory))
	for id, row := range byCategory {
		row.Revenue = revenue[id].Total()
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Revenue != rows[j].Revenue {
			return rows[i].Revenue > rows[j].Revenue
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

func (m memReports) TopCustomers(ctx context.Context, r TimeRange, limit int) ([]CustomerSales, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	byUser := map[primitive.ObjectID]*CustomerSales{}
	for _, o := range m.sales(r) {
		row, ok := byUser[o.User]
		if !ok {
			row = &CustomerSales{UserID: o.User}
			if u, found := m.s.users[o.User]; found {
				row.Name, row.Email = u.Name, u.Email
			}
			byUser[o.User] = row
		}
		row.Orders++
		row.Spent = models.Sum(row.Spent, o.TotalAmount)
	}
	rows := make([]CustomerSales, 0, len(byUser))
	for _, row := range byUser {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Spent != rows[j].Spent {
			return rows[i].Spent > rows[j].Spent
		}
		return rows[i].Email < rows[j].Email
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m memReports) NewCustomers(ctx context.Context, r TimeRange) ([]CountPoint, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	counts := map[string]int64{}
	for _, u := range m.s.users {
		if u.Role == models.RoleCustomer && r.Contains(u.CreatedAt) {
			counts[u.CreatedAt.UTC().Format(ByMonth.Layout())]++
		}
	}
	points := make([]CountPoint, 0, len(counts))
	for period, n := range counts {
		points = append(points, CountPoint{Period: period, Count: n})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	return points, nil
}

func (m memReports) LowStock(ctx context.Context, threshold, limit int) ([]models.Product, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []models.Product{}
	for _, p := range m.s.products {
		if p.Stock <= threshold {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stock != out[j].Stock {
			return out[i].Stock < out[j].Stock
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
