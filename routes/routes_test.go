package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type mailbox struct {
	mu   sync.Mutex
	sent []utils.Email
}

func (m *mailbox) Name() string { return "test" }

func (m *mailbox) Send(msg utils.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailbox) last() utils.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type phone struct {
	mu   sync.Mutex
	sent []string
}

func (p *phone) SendWhatsApp(to, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, to)
	return nil
}

type fakeGateway struct {
	err error
}

func (g fakeGateway) CreateIntent(ctx context.Context, order *models.Order) (*models.PaymentIntent, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &models.PaymentIntent{ID: "pi_test", ClientSecret: "secret", Amount: utils.MinorUnits(order.TotalAmount), Currency: "inr"}, nil
}

type testServer struct {
	t        *testing.T
	store    *store.MemoryStore
	tokens   *utils.TokenManager
	mail     *mailbox
	phone    *phone
	email    *utils.EmailService
	whatsapp *utils.WhatsAppService
	handler  http.Handler
}

func newTestServer(t *testing.T, payments utils.PaymentGateway) *testServer {
	t.Helper()
	cfg, err := utils.ConfigFromEnv(func(string) string { return "" })
	require.NoError(t, err)
	cfg.UploadDir = t.TempDir()
	cfg.AdminSecret = "let-me-in"

	ts := &testServer{
		t:      t,
		store:  store.NewMemoryStore(),
		tokens: utils.NewTokenManager("test-secret", time.Hour),
		mail:   &mailbox{},
		phone:  &phone{},
	}
	ts.email = utils.NewEmailService(ts.mail, cfg.Company)
	ts.whatsapp = utils.NewWhatsAppServiceWithSender(ts.phone)
	ts.handler = NewRouter(Deps{
		Config:   cfg,
		Store:    ts.store,
		Tokens:   ts.tokens,
		Email:    ts.email,
		WhatsApp: ts.whatsapp,
		Payments: payments,
	})
	t.Cleanup(func() {
		ts.email.Wait()
		ts.whatsapp.Wait()
	})
	return ts
}

func (ts *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	decode(t, rec, &body)
	return body.Message
}

// user stores an account and returns it with a session token
func (ts *testServer) user(name, email, role, password string) (*models.User, string) {
	ts.t.Helper()
	hashed, err := utils.HashPassword(password)
	require.NoError(ts.t, err)
	u := &models.User{Name: name, Email: email, Password: hashed, Role: role}
	require.NoError(ts.t, ts.store.Users().Create(context.Background(), u))
	token, err := ts.tokens.Generate(u.ID, u.Email, u.Role)
	require.NoError(ts.t, err)
	return u, token
}

func (ts *testServer) category(name, slug string) *models.Category {
	ts.t.Helper()
	c := &models.Category{Name: name, Slug: slug, IsActive: true}
	require.NoError(ts.t, ts.store.Categories().Create(context.Background(), c))
	return c
}

func (ts *testServer) product(name string, price float64, stock int, category primitive.ObjectID) *models.Product {
	ts.t.Helper()
	p := &models.Product{Name: name, Price: price, Stock: stock, Category: category, IsActive: true, Images: []string{"/uploads/" + name + ".png"}}
	require.NoError(ts.t, ts.store.Products().Create(context.Background(), p))
	return p
}

func shippingAddress() models.Address {
	return models.Address{FullName: "Ada Lovelace", Phone: "+15550001", Street: "1 Main", City: "Pune", Country: "IN"}
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("POST", "/api/auth/register", "", utils.M{"name": "Ada", "email": "Ada@Example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decode(t, rec, &created)
	assert.Equal(t, "ada@example.com", created.User.Email)
	assert.Equal(t, models.RoleCustomer, created.User.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = ts.do("POST", "/api/auth/register", "", utils.M{"name": "Ada again", "email": "ada@example.com", "password": "other12"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", messageOf(t, rec))
	_, total, err := ts.store.Users().List(context.Background(), store.UserFilter{}, store.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "a rejected duplicate writes nothing")

	rec = ts.do("POST", "/api/auth/login", "", utils.M{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", messageOf(t, rec))

	rec = ts.do("POST", "/api/auth/login", "", utils.M{"email": "ADA@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	decode(t, rec, &login)
	claims, err := ts.tokens.Parse(login.Token)
	require.NoError(t, err)
	assert.Equal(t, created.User.ID.Hex(), claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, models.RoleCustomer, claims.Role)

	rec = ts.do("GET", "/api/auth/profile", login.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	tests := []struct {
		body utils.M
		msg  string
	}{
		{utils.M{"email": "a@b.c", "password": "secret1"}, "Name is required"},
		{utils.M{"name": "A", "email": "nope", "password": "secret1"}, "A valid email is required"},
		{utils.M{"name": "A", "email": "a@b.c", "password": "123"}, "Password must be at least 6 characters"},
	}
	for _, tt := range tests {
		rec := ts.do("POST", "/api/auth/register", "", tt.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, tt.msg, messageOf(t, rec))
	}
}

func TestRegisterAdminNeedsSecret(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("POST", "/api/auth/register-admin", "", utils.M{"name": "Root", "email": "root@example.com", "password": "secret1", "adminSecret": "guess"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do("POST", "/api/auth/register-admin", "", utils.M{"name": "Root", "email": "root@example.com", "password": "secret1", "adminSecret": "let-me-in"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		User models.User `json:"user"`
	}
	decode(t, rec, &body)
	assert.Equal(t, models.RoleAdmin, body.User.Role)
}

func TestGoogleLoginNotConfigured(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do("POST", "/api/auth/google", "", utils.M{"idToken": "abc"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

var codePattern = regexp.MustCompile(`is (\d{6})\.`)

// mailedCode waits for queued mail and pulls the code out of the latest message
func (ts *testServer) mailedCode() string {
	ts.t.Helper()
	ts.email.Wait()
	m := codePattern.FindStringSubmatch(ts.mail.last().Text)
	require.Len(ts.t, m, 2)
	return m[1]
}

func TestOtpLoginIsSingleUse(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")

	rec := ts.do("POST", "/api/otp/send", "", utils.M{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	code := ts.mailedCode()

	rec = ts.do("POST", "/api/otp/verify", "", utils.M{"email": "ada@example.com", "otp": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decode(t, rec, &body)
	assert.NotEmpty(t, body.Token)
	assert.True(t, body.User.IsEmailVerified)

	rec = ts.do("POST", "/api/otp/verify", "", utils.M{"email": "ada@example.com", "otp": code})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "OTP not found", messageOf(t, rec))
}

func TestOtpSupersededAndWrongCode(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")

	require.Equal(t, http.StatusOK, ts.do("POST", "/api/otp/send", "", utils.M{"email": "ada@example.com"}).Code)
	first := ts.mailedCode()
	require.Equal(t, http.StatusOK, ts.do("POST", "/api/otp/send", "", utils.M{"email": "ada@example.com"}).Code)
	second := ts.mailedCode()

	if first != second {
		rec := ts.do("POST", "/api/otp/verify", "", utils.M{"email": "ada@example.com", "otp": first})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid or expired OTP", messageOf(t, rec))
	}

	rec := ts.do("POST", "/api/otp/verify", "", utils.M{"email": "ada@example.com", "otp": second})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOtpBurnedAfterRepeatedFailures(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")

	require.Equal(t, http.StatusOK, ts.do("POST", "/api/otp/send", "", utils.M{"email": "ada@example.com"}).Code)
	code := ts.mailedCode()
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 5; i++ {
		rec := ts.do("POST", "/api/otp/verify", "", utils.M{"email": "ada@example.com", "otp": wrong})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid or expired OTP", messageOf(t, rec))
	}

	rec := ts.do("POST", "/api/otp/verify", "", utils.M{"email": "ada@example.com", "otp": code})
	assert.Equal(t, http.StatusNotFound, rec.Code, "the right code no longer works once burned")
	assert.Equal(t, "OTP not found", messageOf(t, rec))
}

func TestOtpExpired(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")

	hashed, err := utils.HashOTP("123456")
	require.NoError(t, err)
	require.NoError(t, ts.store.Otps().Replace(context.Background(), &models.Otp{
		Email:     "ada@example.com",
		Code:      hashed,
		Purpose:   models.OtpPurposeLogin,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	rec := ts.do("POST", "/api/otp/verify", "", utils.M{"email": "ada@example.com", "otp": "123456"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired OTP", messageOf(t, rec))
}

func TestPasswordReset(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")

	rec := ts.do("POST", "/api/auth/forgot-password", "", utils.M{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, ts.do("POST", "/api/auth/forgot-password", "", utils.M{"email": "ada@example.com"}).Code)
	code := ts.mailedCode()

	rec = ts.do("POST", "/api/otp/verify", "", utils.M{"email": "ada@example.com", "otp": code})
	assert.Equal(t, http.StatusNotFound, rec.Code, "a reset code is not a login code")

	rec = ts.do("POST", "/api/auth/reset-password", "", utils.M{"email": "ada@example.com", "otp": code, "newPassword": "brandnew"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do("POST", "/api/auth/login", "", utils.M{"email": "ada@example.com", "password": "brandnew"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteCategoryGuard(t *testing.T) {
	ts := newTestServer(t, nil)
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")
	used := ts.category("Lighting", "lighting")
	empty := ts.category("Empty", "empty")
	ts.product("lamp", 20, 3, used.ID)

	rec := ts.do("DELETE", "/api/categories/"+used.ID.Hex(), admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Message      string `json:"message"`
		ProductCount int64  `json:"productCount"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "Cannot delete category with associated products", body.Message)
	assert.Equal(t, int64(1), body.ProductCount)
	_, err := ts.store.Categories().FindByID(context.Background(), used.ID)
	assert.NoError(t, err)

	rec = ts.do("DELETE", "/api/categories/"+empty.ID.Hex(), admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Category deleted successfully", messageOf(t, rec))
	_, err = ts.store.Categories().FindByID(context.Background(), empty.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCategoryAdminRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	_, customer := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")

	rec := ts.do("POST", "/api/categories", "", utils.M{"name": "Garden Tools"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = ts.do("POST", "/api/categories", customer, utils.M{"name": "Garden Tools"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do("POST", "/api/categories", admin, utils.M{"name": "Garden Tools"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Category models.Category `json:"category"`
	}
	decode(t, rec, &created)
	assert.Equal(t, "garden-tools", created.Category.Slug)

	rec = ts.do("GET", "/api/categories/garden-tools", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do("PATCH", "/api/categories/"+created.Category.ID.Hex()+"/toggle-status", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cat, err := ts.store.Categories().FindByID(context.Background(), created.Category.ID)
	require.NoError(t, err)
	assert.False(t, cat.IsActive)
}

func TestCategoryParentCycles(t *testing.T) {
	ts := newTestServer(t, nil)
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")
	home := ts.category("Home", "home")
	kitchen := &models.Category{Name: "Kitchen", Slug: "kitchen", IsActive: true, Parent: &home.ID}
	require.NoError(t, ts.store.Categories().Create(context.Background(), kitchen))
	knives := &models.Category{Name: "Knives", Slug: "knives", IsActive: true, Parent: &kitchen.ID}
	require.NoError(t, ts.store.Categories().Create(context.Background(), knives))

	move := func(id, parent primitive.ObjectID) *httptest.ResponseRecorder {
		return ts.do("PUT", "/api/categories/"+id.Hex(), admin, utils.M{"parent": parent.Hex()})
	}

	rec := move(home.ID, home.ID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "A category cannot be its own parent", messageOf(t, rec))

	for _, parent := range []primitive.ObjectID{kitchen.ID, knives.ID} {
		rec = move(home.ID, parent)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "A category cannot be nested under its own subcategory", messageOf(t, rec))
	}

	rec = move(home.ID, primitive.NewObjectID())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Parent category not found", messageOf(t, rec))

	garden := ts.category("Garden", "garden")
	rec = move(knives.ID, garden.ID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := ts.store.Categories().FindByID(context.Background(), home.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Parent)
}

func TestCategoryNameAndSlugConflicts(t *testing.T) {
	ts := newTestServer(t, nil)
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")

	require.Equal(t, http.StatusCreated, ts.do("POST", "/api/categories", admin, utils.M{"name": "Pots & Pans"}).Code)

	var conflict struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	rec := ts.do("POST", "/api/categories", admin, utils.M{"name": "Pots & Pans"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	decode(t, rec, &conflict)
	assert.Equal(t, "name", conflict.Field)

	rec = ts.do("POST", "/api/categories", admin, utils.M{"name": "Pots and Pans"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	decode(t, rec, &conflict)
	assert.Equal(t, "slug", conflict.Field)
	assert.Contains(t, conflict.Message, "pots-and-pans")
	assert.Contains(t, conflict.Message, "Pots & Pans")
}

func TestProductListingPagination(t *testing.T) {
	ts := newTestServer(t, nil)
	cat := ts.category("Lighting", "lighting")
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ts.product(name, 10, 1, cat.ID)
	}

	rec := ts.do("GET", "/api/products?page=2&limit=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Products   []models.Product `json:"products"`
		Pagination utils.Pagination `json:"pagination"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Products, 2)
	assert.Equal(t, utils.Pagination{CurrentPage: 2, TotalPages: 3, TotalItems: 5, Limit: 2, HasNextPage: true, HasPrevPage: true}, body.Pagination)

	rec = ts.do("GET", "/api/products?category=missing", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Empty(t, body.Products)
	assert.Equal(t, int64(0), body.Pagination.TotalItems)

	rec = ts.do("GET", "/api/products?minPrice=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartMergesSameProductAndVariations(t *testing.T) {
	ts := newTestServer(t, nil)
	_, token := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	cat := ts.category("Lighting", "lighting")
	lamp := ts.product("lamp", 20, 5, cat.ID)

	add := func(qty int, size string) *httptest.ResponseRecorder {
		return ts.do("POST", "/api/cart", token, utils.M{"productId": lamp.ID.Hex(), "quantity": qty, "variations": utils.M{"size": size}})
	}
	require.Equal(t, http.StatusOK, add(1, "M").Code)
	require.Equal(t, http.StatusOK, add(2, "M").Code)
	rec := add(1, "L")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cart        models.Cart `json:"cart"`
		TotalItems  int         `json:"totalItems"`
		TotalAmount float64     `json:"totalAmount"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Cart.Items, 2)
	assert.Equal(t, 4, body.TotalItems)
	assert.Equal(t, 80.0, body.TotalAmount)

	rec = add(5, "L")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Insufficient stock", messageOf(t, rec))

	rec = ts.do("DELETE", "/api/cart/"+lamp.ID.Hex(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Empty(t, body.Cart.Items)
}

func TestWishlistIsIdempotent(t *testing.T) {
	ts := newTestServer(t, nil)
	_, token := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	lamp := ts.product("lamp", 20, 5, ts.category("Lighting", "lighting").ID)

	for i := 0; i < 2; i++ {
		rec := ts.do("POST", "/api/wishlist", token, utils.M{"productId": lamp.ID.Hex()})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do("GET", "/api/wishlist", token, nil)
	var body struct {
		Wishlist models.Wishlist  `json:"wishlist"`
		Products []models.Product `json:"products"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Wishlist.Items, 1)
	assert.Len(t, body.Products, 1)

	assert.Equal(t, http.StatusOK, ts.do("DELETE", "/api/wishlist/"+lamp.ID.Hex(), token, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do("DELETE", "/api/wishlist/"+lamp.ID.Hex(), token, nil).Code)
}

func (ts *testServer) placeOrder(token string, items []models.OrderItem) *httptest.ResponseRecorder {
	return ts.do("POST", "/api/orders", token, utils.M{"items": items, "shippingAddress": shippingAddress()})
}

func TestCreateOrder(t *testing.T) {
	ts := newTestServer(t, nil)
	ada, token := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	cat := ts.category("Lighting", "lighting")
	lamp := ts.product("lamp", 19.99, 5, cat.ID)
	bulb := ts.product("bulb", 0.1, 50, cat.ID)

	rec := ts.placeOrder(token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cart is empty", messageOf(t, rec))
	_, total, err := ts.store.Orders().List(context.Background(), store.OrderFilter{}, store.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	require.Equal(t, http.StatusOK, ts.do("POST", "/api/cart", token, utils.M{"productId": lamp.ID.Hex()}).Code)

	rec = ts.placeOrder(token, []models.OrderItem{
		{Product: lamp.ID, Price: 19.99, Quantity: 3},
		{Product: bulb.ID, Price: 0.1, Quantity: 2},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		Order models.Order `json:"order"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 60.17, body.Order.TotalAmount)
	assert.Equal(t, ada.ID, body.Order.User)
	assert.Equal(t, models.PaymentMethodCOD, body.Order.PaymentMethod)
	assert.Equal(t, models.OrderStatusPending, body.Order.OrderStatus)
	assert.Equal(t, "lamp", body.Order.Items[0].Name, "names are filled from the catalog")

	_, err = ts.store.Carts().Get(context.Background(), ada.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound), "placing an order clears the cart")

	rec = ts.do("GET", "/api/orders/my", token, nil)
	var mine struct {
		Orders     []models.Order   `json:"orders"`
		Pagination utils.Pagination `json:"pagination"`
	}
	decode(t, rec, &mine)
	assert.Len(t, mine.Orders, 1)
	assert.Equal(t, int64(1), mine.Pagination.TotalItems)
}

func TestOrderValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	_, token := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	lamp := ts.product("lamp", 20, 5, ts.category("Lighting", "lighting").ID)

	rec := ts.do("POST", "/api/orders", token, utils.M{
		"items":         []models.OrderItem{{Product: lamp.ID, Price: 20, Quantity: 0}},
		"paymentMethod": "cod",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Item quantity must be at least 1", messageOf(t, rec))

	rec = ts.do("POST", "/api/orders", token, utils.M{
		"items":           []models.OrderItem{{Product: lamp.ID, Price: 20, Quantity: 1}},
		"shippingAddress": shippingAddress(),
		"paymentMethod":   "bitcoin",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid payment method", messageOf(t, rec))
}

func TestOrderAccessAndInvoice(t *testing.T) {
	ts := newTestServer(t, nil)
	_, ada := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	_, bob := ts.user("Bob", "bob@example.com", models.RoleCustomer, "secret1")
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")
	lamp := ts.product("lamp", 20, 5, ts.category("Lighting", "lighting").ID)

	rec := ts.placeOrder(ada, []models.OrderItem{{Product: lamp.ID, Price: 20, Quantity: 2}})
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed struct {
		Order models.Order `json:"order"`
	}
	decode(t, rec, &placed)
	path := "/api/orders/" + placed.Order.ID.Hex()

	assert.Equal(t, http.StatusOK, ts.do("GET", path, ada, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do("GET", path, admin, nil).Code)
	rec = ts.do("GET", path, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Not authorized to view this order", messageOf(t, rec))
	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/orders/not-an-id", ada, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do("GET", "/api/orders/"+primitive.NewObjectID().Hex(), ada, nil).Code)

	rec = ts.do("GET", path+"/invoice", ada, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var invoice struct {
		InvoiceNumber string `json:"invoiceNumber"`
		Customer      struct {
			Email string `json:"email"`
		} `json:"customer"`
		Items []struct {
			LineTotal float64 `json:"lineTotal"`
		} `json:"items"`
		Subtotal float64 `json:"subtotal"`
	}
	decode(t, rec, &invoice)
	assert.Equal(t, placed.Order.InvoiceNumber(), invoice.InvoiceNumber)
	assert.Equal(t, "ada@example.com", invoice.Customer.Email)
	assert.Equal(t, 40.0, invoice.Items[0].LineTotal)
	assert.Equal(t, 40.0, invoice.Subtotal)
}

func TestUpdateOrderStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	_, ada := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")
	lamp := ts.product("lamp", 20, 5, ts.category("Lighting", "lighting").ID)

	rec := ts.placeOrder(ada, []models.OrderItem{{Product: lamp.ID, Price: 20, Quantity: 1}})
	var placed struct {
		Order models.Order `json:"order"`
	}
	decode(t, rec, &placed)
	path := "/api/admin/orders/" + placed.Order.ID.Hex() + "/status"

	assert.Equal(t, http.StatusForbidden, ts.do("PUT", path, ada, utils.M{"status": "shipped"}).Code)
	rec = ts.do("PUT", path, admin, utils.M{})
	assert.Equal(t, "status or paymentStatus is required", messageOf(t, rec))
	rec = ts.do("PUT", path, admin, utils.M{"status": "lost"})
	assert.Equal(t, "Invalid order status", messageOf(t, rec))

	rec = ts.do("PUT", path, admin, utils.M{"status": "delivered", "paymentStatus": "paid"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated struct {
		Order models.Order `json:"order"`
	}
	decode(t, rec, &updated)
	assert.Equal(t, models.OrderStatusDelivered, updated.Order.OrderStatus)
	assert.Equal(t, models.PaymentStatusPaid, updated.Order.PaymentStatus)
	assert.NotNil(t, updated.Order.DeliveredAt)
}

func TestCreateReview(t *testing.T) {
	ts := newTestServer(t, nil)
	_, ada := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	_, bob := ts.user("Bob", "bob@example.com", models.RoleCustomer, "secret1")
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")
	cat := ts.category("Lighting", "lighting")
	lamp := ts.product("lamp", 20, 10, cat.ID)
	bulb := ts.product("bulb", 2, 10, cat.ID)

	orderOf := func(token string, product primitive.ObjectID) string {
		rec := ts.placeOrder(token, []models.OrderItem{{Product: product, Price: 20, Quantity: 1}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var placed struct {
			Order models.Order `json:"order"`
		}
		decode(t, rec, &placed)
		return placed.Order.ID.Hex()
	}
	deliver := func(orderID string) {
		rec := ts.do("PUT", "/api/admin/orders/"+orderID+"/status", admin, utils.M{"status": "delivered"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	review := func(token, orderID string, rating int) *httptest.ResponseRecorder {
		return ts.do("POST", "/api/products/"+lamp.ID.Hex()+"/reviews", token, utils.M{"orderId": orderID, "rating": rating, "comment": "bright"})
	}

	adaLamp := orderOf(ada, lamp.ID)
	adaBulb := orderOf(ada, bulb.ID)
	bobLamp := orderOf(bob, lamp.ID)
	deliver(bobLamp)
	deliver(adaBulb)

	assert.Equal(t, http.StatusUnauthorized, review("", adaLamp, 4).Code)

	rec := ts.do("POST", "/api/products/"+lamp.ID.Hex()+"/reviews", ada, utils.M{"rating": 4})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "orderId is required", messageOf(t, rec))

	rec = review(ada, adaLamp, 6)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = review(ada, bobLamp, 4)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You can only review your own orders", messageOf(t, rec))

	rec = review(ada, adaBulb, 4)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "This order does not contain the product", messageOf(t, rec))

	rec = review(ada, adaLamp, 4)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "You can only review delivered orders", messageOf(t, rec))

	deliver(adaLamp)
	rec = review(ada, adaLamp, 4)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Review models.Review `json:"review"`
	}
	decode(t, rec, &created)
	assert.Equal(t, "Ada", created.Review.UserName)

	rec = review(ada, adaLamp, 2)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "You have already reviewed this product for this order", messageOf(t, rec))

	require.Equal(t, http.StatusCreated, review(bob, bobLamp, 5).Code)

	stored, err := ts.store.Products().FindByID(context.Background(), lamp.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, stored.Rating)
	assert.Equal(t, 2, stored.NumReviews)
	assert.Equal(t, 20.0, stored.Price)

	rec = ts.do("GET", "/api/products/"+lamp.ID.Hex()+"/reviews", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Reviews       []models.Review `json:"reviews"`
		AverageRating float64         `json:"averageRating"`
		NumReviews    int             `json:"numReviews"`
	}
	decode(t, rec, &listed)
	assert.Len(t, listed.Reviews, 2)
	assert.Equal(t, 4.5, listed.AverageRating)
	assert.Equal(t, 2, listed.NumReviews)
}

func TestPayOrder(t *testing.T) {
	lampOrder := func(ts *testServer) (string, string) {
		_, token := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
		lamp := ts.product("lamp", 20, 5, ts.category("Lighting", "lighting").ID)
		rec := ts.placeOrder(token, []models.OrderItem{{Product: lamp.ID, Price: 20.5, Quantity: 2}})
		require.Equal(ts.t, http.StatusCreated, rec.Code)
		var placed struct {
			Order models.Order `json:"order"`
		}
		decode(ts.t, rec, &placed)
		return token, "/api/orders/" + placed.Order.ID.Hex() + "/pay"
	}

	t.Run("not configured", func(t *testing.T) {
		ts := newTestServer(t, nil)
		token, path := lampOrder(ts)
		rec := ts.do("POST", path, token, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("provider error", func(t *testing.T) {
		ts := newTestServer(t, fakeGateway{err: errors.New("card declined")})
		token, path := lampOrder(ts)
		rec := ts.do("POST", path, token, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "Payment provider error", messageOf(t, rec))
	})

	t.Run("intent created", func(t *testing.T) {
		ts := newTestServer(t, fakeGateway{})
		token, path := lampOrder(ts)
		_, bob := ts.user("Bob", "bob@example.com", models.RoleCustomer, "secret1")
		assert.Equal(t, http.StatusForbidden, ts.do("POST", path, bob, nil).Code)

		rec := ts.do("POST", path, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body struct {
			PaymentIntent models.PaymentIntent `json:"paymentIntent"`
			Order         models.Order         `json:"order"`
		}
		decode(t, rec, &body)
		assert.Equal(t, int64(4100), body.PaymentIntent.Amount)
		assert.Equal(t, "pi_test", body.Order.PaymentIntentID)
		assert.Equal(t, models.PaymentMethodCard, body.Order.PaymentMethod)
	})
}

func TestAdminDeleteUserGuards(t *testing.T) {
	ts := newTestServer(t, nil)
	rootUser, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")
	buyer, buyerToken := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	idle, _ := ts.user("Idle", "idle@example.com", models.RoleCustomer, "secret1")
	lamp := ts.product("lamp", 20, 5, ts.category("Lighting", "lighting").ID)
	require.Equal(t, http.StatusCreated, ts.placeOrder(buyerToken, []models.OrderItem{{Product: lamp.ID, Price: 20, Quantity: 1}}).Code)

	rec := ts.do("DELETE", "/api/admin/users/"+rootUser.ID.Hex(), admin, nil)
	assert.Equal(t, "You cannot delete your own account", messageOf(t, rec))

	rec = ts.do("DELETE", "/api/admin/users/"+buyer.ID.Hex(), admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var guard struct {
		Message    string `json:"message"`
		OrderCount int64  `json:"orderCount"`
	}
	decode(t, rec, &guard)
	assert.Equal(t, "Cannot delete user with existing orders", guard.Message)
	assert.Equal(t, int64(1), guard.OrderCount)

	rec = ts.do("DELETE", "/api/admin/users/"+idle.ID.Hex(), admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, ts.do("DELETE", "/api/admin/users/"+idle.ID.Hex(), admin, nil).Code)

	rec = ts.do("PUT", "/api/admin/users/"+rootUser.ID.Hex(), admin, utils.M{"role": "customer"})
	assert.Equal(t, "You cannot change your own role", messageOf(t, rec))

	rec = ts.do("PUT", "/api/admin/users/"+buyer.ID.Hex(), admin, utils.M{"isBlocked": true})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do("POST", "/api/auth/login", "", utils.M{"email": "ada@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminUsersListing(t *testing.T) {
	ts := newTestServer(t, nil)
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")
	ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")

	rec := ts.do("GET", "/api/admin/users?role=customer", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Users []struct {
			Email      string `json:"email"`
			OrderCount int64  `json:"orderCount"`
		} `json:"users"`
		Pagination utils.Pagination `json:"pagination"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Users, 1)
	assert.Equal(t, "ada@example.com", body.Users[0].Email)

	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/admin/users?sortBy=password", admin, nil).Code)
}

func TestDashboardAndAnalytics(t *testing.T) {
	ts := newTestServer(t, nil)
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")
	_, ada := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	lamp := ts.product("lamp", 20, 2, ts.category("Lighting", "lighting").ID)
	require.Equal(t, http.StatusCreated, ts.placeOrder(ada, []models.OrderItem{{Product: lamp.ID, Price: 20, Quantity: 3}}).Code)

	rec := ts.do("GET", "/api/admin/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var dash struct {
		Overview struct {
			TotalCustomers int64   `json:"totalCustomers"`
			TotalOrders    int64   `json:"totalOrders"`
			TotalRevenue   float64 `json:"totalRevenue"`
		} `json:"overview"`
		LowStockProducts []models.Product `json:"lowStockProducts"`
	}
	decode(t, rec, &dash)
	assert.Equal(t, int64(1), dash.Overview.TotalCustomers)
	assert.Equal(t, int64(1), dash.Overview.TotalOrders)
	assert.Equal(t, 60.0, dash.Overview.TotalRevenue)
	assert.Len(t, dash.LowStockProducts, 1)

	rec = ts.do("GET", "/api/analytics/sales?period=7d", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sales struct {
		Period string `json:"period"`
		Totals struct {
			Revenue float64 `json:"revenue"`
			Orders  int64   `json:"orders"`
		} `json:"totals"`
	}
	decode(t, rec, &sales)
	assert.Equal(t, "7d", sales.Period)
	assert.Equal(t, 60.0, sales.Totals.Revenue)

	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/analytics/sales?period=2w", admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do("GET", "/api/analytics/sales", ada, nil).Code)
}

func TestNotifyQueuesMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")
	_, ada := ts.user("Ada", "ada@example.com", models.RoleCustomer, "secret1")
	lamp := ts.product("lamp", 20, 5, ts.category("Lighting", "lighting").ID)

	rec := ts.do("POST", "/api/notify/email", admin, utils.M{"to": "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do("POST", "/api/notify/email", admin, utils.M{"to": "ada@example.com", "message": "hello"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	ts.email.Wait()
	assert.Equal(t, "ada@example.com", ts.mail.last().To)

	rec = ts.placeOrder(ada, []models.OrderItem{{Product: lamp.ID, Price: 20, Quantity: 1}})
	var placed struct {
		Order models.Order `json:"order"`
	}
	decode(t, rec, &placed)
	rec = ts.do("POST", "/api/notify/order/"+placed.Order.ID.Hex(), admin, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	ts.whatsapp.Wait()
	ts.phone.mu.Lock()
	assert.Equal(t, []string{"+15550001"}, ts.phone.sent)
	ts.phone.mu.Unlock()
}

func TestUploadImages(t *testing.T) {
	ts := newTestServer(t, nil)
	_, admin := ts.user("Root", "root@example.com", models.RoleAdmin, "secret1")

	uploadSized := func(size int, filenames ...string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for _, filename := range filenames {
			fw, err := mw.CreateFormFile("images", filename)
			require.NoError(t, err)
			_, err = fw.Write(bytes.Repeat([]byte{0x89}, size))
			require.NoError(t, err)
		}
		require.NoError(t, mw.Close())

		req := httptest.NewRequest("POST", "/api/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+admin)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		return rec
	}
	upload := func(filename string) *httptest.ResponseRecorder { return uploadSized(16, filename) }

	rec := upload("notes.txt")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload("lamp.PNG")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		URLs []string `json:"urls"`
	}
	decode(t, rec, &body)
	require.Len(t, body.URLs, 1)
	assert.Regexp(t, `^/uploads/[0-9a-f-]{36}\.png$`, body.URLs[0])

	rec = ts.do("GET", body.URLs[0], "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))

	// three 4MB images exceed the JSON body cap but not the upload cap
	rec = uploadSized(4<<20, "a.jpg", "b.jpg", "c.jpg")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &body)
	assert.Len(t, body.URLs, 3)

	rec = uploadSized(6<<20, "huge.jpg")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "huge.jpg: images must be 5MB or smaller", messageOf(t, rec))
}

func TestHealthAndFallbacks(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("GET", "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	decode(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "memory:connected", health.Database)

	rec = ts.do("GET", "/api/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", messageOf(t, rec))
}
