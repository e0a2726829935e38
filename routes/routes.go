package routes

import (
	"net/http"
	"strconv"

	"storefront-api/controllers"
	"storefront-api/middleware"
	"storefront-api/models"
	"storefront-api/realtime"
	"storefront-api/store"
	"storefront-api/utils"

	"github.com/gorilla/mux"
)

// Deps is everything the route table wires into controllers. Google and
// Payments may be nil when their providers are not configured.
type Deps struct {
	Config   *utils.Config
	Store    store.Store
	Tokens   *utils.TokenManager
	Email    *utils.EmailService
	WhatsApp *utils.WhatsAppService
	Google   utils.GoogleVerifier
	Payments utils.PaymentGateway
	Hub      *realtime.Hub
}

// NewRouter sets up all the routes for the application under /api, plus
// static serving of uploaded images.
func NewRouter(d Deps) *mux.Router {
	cfg := d.Config

	var live controllers.Broadcaster
	if d.Hub != nil {
		live = d.Hub
	}
	google := d.Google
	if google == nil {
		google = utils.NewGoogleVerifier("")
	}

	userController := controllers.NewUserController(d.Store, d.Tokens, google, cfg.AdminSecret)
	otpController := controllers.NewOtpController(d.Store, d.Tokens, d.Email)
	productController := controllers.NewProductController(d.Store)
	categoryController := controllers.NewCategoryController(d.Store)
	reviewController := controllers.NewReviewController(d.Store)
	cartController := controllers.NewCartController(d.Store)
	wishlistController := controllers.NewWishlistController(d.Store)
	orderController := controllers.NewOrderController(d.Store, d.Payments, live, cfg.Company)
	adminController := controllers.NewAdminController(d.Store)
	analyticsController := controllers.NewAnalyticsController(d.Store)
	notifyController := controllers.NewNotifyController(d.Store, d.Email, d.WhatsApp, cfg.Company.Name)
	uploadController := controllers.NewUploadController(cfg.UploadDir)
	healthController := controllers.NewHealthController(d.Store, cfg.Environment, cfg.Version)

	authenticate := middleware.Authenticate(d.Tokens)
	requireAdmin := middleware.RequireRole(models.RoleAdmin)
	protect := func(h http.HandlerFunc) http.Handler { return authenticate(h) }
	adminOnly := func(h http.HandlerFunc) http.Handler { return authenticate(requireAdmin(h)) }

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusNotFound, "Route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	router.PathPrefix(controllers.UploadURLPrefix).Handler(cacheFor(86400,
		http.StripPrefix(controllers.UploadURLPrefix, http.FileServer(http.Dir(cfg.UploadDir)))))

	limiter := middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, cfg.TrustProxy)

	// Image uploads sit outside the JSON body cap and carry their own
	router.Handle("/api/upload", middleware.LimitBody(cfg.MaxUploadBytes)(
		limiter.Middleware(adminOnly(uploadController.UploadImages)))).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.LimitBody(cfg.MaxBodyBytes))
	api.Use(limiter.Middleware)

	api.HandleFunc("/health", healthController.Health).Methods("GET")

	// Auth and OTP share a stricter limiter
	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimitMax, cfg.RateLimitWindow, cfg.TrustProxy)

	auth := api.PathPrefix("/auth").Subrouter()
	auth.Use(authLimiter.Middleware)
	auth.HandleFunc("/register", userController.Register).Methods("POST")
	auth.HandleFunc("/register-admin", userController.RegisterAdmin).Methods("POST")
	auth.HandleFunc("/login", userController.Login).Methods("POST")
	auth.HandleFunc("/google", userController.GoogleLogin).Methods("POST")
	auth.HandleFunc("/forgot-password", otpController.ForgotPassword).Methods("POST")
	auth.HandleFunc("/reset-password", otpController.ResetPassword).Methods("POST")
	auth.Handle("/profile", protect(userController.GetProfile)).Methods("GET")
	auth.Handle("/profile", protect(userController.UpdateProfile)).Methods("PUT")

	otp := api.PathPrefix("/otp").Subrouter()
	otp.Use(authLimiter.Middleware)
	otp.HandleFunc("/send", otpController.SendOTP).Methods("POST")
	otp.HandleFunc("/verify", otpController.VerifyOTP).Methods("POST")

	// Product routes
	api.HandleFunc("/products", productController.GetProducts).Methods("GET")
	api.HandleFunc("/products/featured", productController.GetFeaturedProducts).Methods("GET")
	api.HandleFunc("/products/{id}", productController.GetProductByID).Methods("GET")
	api.HandleFunc("/products/{id}/reviews", reviewController.GetProductReviews).Methods("GET")
	api.Handle("/products/{id}/reviews", protect(reviewController.CreateReview)).Methods("POST")
	api.Handle("/products", adminOnly(productController.CreateProduct)).Methods("POST")
	api.Handle("/products/{id}", adminOnly(productController.UpdateProduct)).Methods("PUT")
	api.Handle("/products/{id}", adminOnly(productController.DeleteProduct)).Methods("DELETE")

	// Category routes
	api.HandleFunc("/categories", categoryController.GetCategories).Methods("GET")
	api.HandleFunc("/categories/{idOrSlug}", categoryController.GetCategory).Methods("GET")
	api.Handle("/categories", adminOnly(categoryController.CreateCategory)).Methods("POST")
	api.Handle("/categories/{id}", adminOnly(categoryController.UpdateCategory)).Methods("PUT")
	api.Handle("/categories/{id}", adminOnly(categoryController.DeleteCategory)).Methods("DELETE")
	api.Handle("/categories/{id}/toggle-status", adminOnly(categoryController.ToggleCategoryStatus)).Methods("PATCH")

	// Cart routes
	api.Handle("/cart", protect(cartController.GetCart)).Methods("GET")
	api.Handle("/cart", protect(cartController.AddToCart)).Methods("POST")
	api.Handle("/cart", protect(cartController.ClearCart)).Methods("DELETE")
	api.Handle("/cart/{productId}", protect(cartController.UpdateCartItem)).Methods("PUT")
	api.Handle("/cart/{productId}", protect(cartController.RemoveFromCart)).Methods("DELETE")

	// Wishlist routes
	api.Handle("/wishlist", protect(wishlistController.GetWishlist)).Methods("GET")
	api.Handle("/wishlist", protect(wishlistController.AddToWishlist)).Methods("POST")
	api.Handle("/wishlist/{productId}", protect(wishlistController.RemoveFromWishlist)).Methods("DELETE")

	// Order routes
	api.Handle("/orders", protect(orderController.CreateOrder)).Methods("POST")
	api.Handle("/orders/my", protect(orderController.GetMyOrders)).Methods("GET")
	api.Handle("/orders/{id}", protect(orderController.GetOrder)).Methods("GET")
	api.Handle("/orders/{id}/invoice", protect(orderController.GetInvoice)).Methods("GET")
	api.Handle("/orders/{id}/pay", protect(orderController.PayOrder)).Methods("POST")
	api.Handle("/orders/{id}/status", adminOnly(orderController.UpdateOrderStatus)).Methods("PUT")

	// Admin routes
	api.Handle("/admin/dashboard", adminOnly(adminController.Dashboard)).Methods("GET")
	api.Handle("/admin/users", adminOnly(adminController.GetUsers)).Methods("GET")
	api.Handle("/admin/users/{id}", adminOnly(adminController.GetUser)).Methods("GET")
	api.Handle("/admin/users/{id}", adminOnly(adminController.UpdateUser)).Methods("PUT")
	api.Handle("/admin/users/{id}", adminOnly(adminController.DeleteUser)).Methods("DELETE")
	api.Handle("/admin/orders", adminOnly(adminController.GetOrders)).Methods("GET")
	api.Handle("/admin/orders/{id}/status", adminOnly(orderController.UpdateOrderStatus)).Methods("PUT")
	api.Handle("/admin/products", adminOnly(productController.AdminGetProducts)).Methods("GET")
	api.Handle("/admin/products/export", adminOnly(productController.ExportProducts)).Methods("GET")
	api.Handle("/admin/products/import", adminOnly(productController.ImportProducts)).Methods("POST")
	api.Handle("/admin/categories", adminOnly(categoryController.AdminGetCategories)).Methods("GET")
	if d.Hub != nil {
		liveController := controllers.NewLiveController(d.Hub, d.Tokens)
		api.HandleFunc("/admin/orders/live", liveController.Orders).Methods("GET")
	}

	// Analytics routes
	api.Handle("/analytics/sales", adminOnly(analyticsController.Sales)).Methods("GET")
	api.Handle("/analytics/top-products", adminOnly(analyticsController.TopProducts)).Methods("GET")
	api.Handle("/analytics/customers", adminOnly(analyticsController.Customers)).Methods("GET")
	api.Handle("/analytics/categories", adminOnly(analyticsController.Categories)).Methods("GET")

	// Notification routes
	api.Handle("/notify/email", adminOnly(notifyController.SendEmail)).Methods("POST")
	api.Handle("/notify/whatsapp", adminOnly(notifyController.SendWhatsApp)).Methods("POST")
	api.Handle("/notify/order/{id}", adminOnly(notifyController.NotifyOrder)).Methods("POST")

	return router
}

func cacheFor(seconds int, next http.Handler) http.Handler {
	value := "public, max-age=" + strconv.Itoa(seconds)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", value)
		next.ServeHTTP(w, r)
	})
}
