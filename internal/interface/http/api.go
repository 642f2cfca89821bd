package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	domcart "example.com/cartsync/internal/domain/cart"
	domproduct "example.com/cartsync/internal/domain/product"
	domuser "example.com/cartsync/internal/domain/user"
	authuc "example.com/cartsync/internal/usecase/auth"
	cartuc "example.com/cartsync/internal/usecase/cart"
	productuc "example.com/cartsync/internal/usecase/product"
)

// HTTPObserver records per-route request metrics.
type HTTPObserver interface {
	ObserveHTTP(route, method string, status int, elapsed time.Duration)
}

type API struct {
	authSvc    *authuc.Service
	productSvc *productuc.Service
	cartSvc    *cartuc.Service
	tokenSvc   authuc.TokenService
	validator  *validator.Validate
	logger     *zap.Logger
	observer   HTTPObserver
	metrics    http.Handler
	limiter    *ipRateLimiter
}

type Dependencies struct {
	AuthService    *authuc.Service
	ProductService *productuc.Service
	CartService    *cartuc.Service
	TokenService   authuc.TokenService
	Logger         *zap.Logger
	// Observer and MetricsHandler are optional.
	Observer       HTTPObserver
	MetricsHandler http.Handler
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64
	RateBurst int
}

func NewAPI(deps Dependencies) *API {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &API{
		authSvc:    deps.AuthService,
		productSvc: deps.ProductService,
		cartSvc:    deps.CartService,
		tokenSvc:   deps.TokenService,
		validator:  validator.New(),
		logger:     logger,
		observer:   deps.Observer,
		metrics:    deps.MetricsHandler,
	}
	if deps.RateLimit > 0 {
		burst := deps.RateBurst
		if burst < 1 {
			burst = 1
		}
		a.limiter = newIPRateLimiter(rate.Limit(deps.RateLimit), burst)
	}
	return a
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(a.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if a.limiter != nil {
			r.Use(a.rateLimit)
		}
		r.Use(chimw.AllowContentType("application/json", "text/plain"))

		r.Post("/auth/login", a.handleLogin)
		r.Get("/products", a.handleListProducts)
		r.Get("/products/{id}", a.handleGetProduct)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware)
			pr.Get("/getCart", a.handleGetCart)
			pr.Post("/addToCart", a.handleAddToCart)
			pr.Put("/updateCart/{productId}", a.handleUpdateCart)
			pr.Delete("/deletedProduct/{lineItemId}", a.handleDeleteCartItem)
		})
	})

	return r
}

func (a *API) decodeAndValidate(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return a.validator.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func respondError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// respondValidationError lists the failing fields when err comes from the
// validator, otherwise it reports a malformed body.
func respondValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: details})
}

func parseIDParam(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}

func mapUser(u *domuser.User) map[string]any {
	return map[string]any{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
	}
}

func mapProduct(p *domproduct.Product) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"image":       p.ImageURL,
		"stock":       p.Stock,
		"category_id": p.CategoryID,
	}
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domuser.ErrInvalidCredential),
		errors.Is(err, domcart.ErrInvalidQuantity),
		errors.Is(err, domproduct.ErrOutOfStock):
		respondError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, domuser.ErrUserNotFound),
		errors.Is(err, domproduct.ErrProductNotFound),
		errors.Is(err, domcart.ErrItemNotFound):
		respondError(w, http.StatusNotFound, err)
	case errors.Is(err, domuser.ErrUnauthorized),
		errors.Is(err, domcart.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, err)
	default:
		respondError(w, http.StatusInternalServerError, err)
	}
}
