package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"pharmacy_inventory/internal/auth"
	"pharmacy_inventory/internal/config"
	"pharmacy_inventory/internal/inventory"
	"pharmacy_inventory/internal/metrics"
	"pharmacy_inventory/internal/middleware"
	"pharmacy_inventory/internal/store"
	"pharmacy_inventory/internal/validation"
	rediskey "pharmacy_inventory/pkg/redis"
)

const maxHistoryLimit = 500

// rawValue accepts a JSON string or number and keeps its text, so form style
// input ("12.50") and typed input (12.5) go through the same validation.
type rawValue string

func (v *rawValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = rawValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("expected a string or a number")
	}
	*v = rawValue(n.String())
	return nil
}

// Setup registers every HTTP route. rdb may be nil, which turns off rate
// limiting and the login lockout.
func Setup(r *gin.Engine, inv *inventory.Service, users *auth.Service, rdb *rd.Client, cfg config.AppConfig) {
	writeLimit := func(scope string) gin.HandlerFunc {
		if rdb == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RedisRateLimit(rdb, scope, cfg.WriteRateLimit, cfg.WriteRateWindow)
	}
	var guard *rediskey.LoginGuard
	if rdb != nil {
		guard = rediskey.NewLoginGuard(rdb, int64(cfg.LoginMaxFailures), cfg.LoginLockout)
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.GET("/health", health(inv))

	// Inventory
	api.GET("/inventory", listProducts(inv))
	api.POST("/inventory", writeLimit("inventory"), createProduct(inv))
	api.GET("/inventory/names", productNames(inv))
	api.GET("/inventory/:name", getProduct(inv))
	api.GET("/inventory/:name/history", productHistory(inv))
	api.PUT("/inventory/:name/quantity", writeLimit("inventory"), setQuantity(inv))
	api.POST("/inventory/:name/adjust", writeLimit("inventory"), adjustQuantity(inv))

	// Accounts
	api.POST("/signup", writeLimit("auth"), signup(users))
	api.POST("/login", writeLimit("auth"), login(users, guard))
	api.GET("/me", middleware.RequireAuth(users), me())

	// Orders and prescriptions are not built yet
	api.POST("/orders", notImplemented)
	api.GET("/orders/my", notImplemented)
	api.GET("/orders/pending", notImplemented)
	api.POST("/orders/:id/fulfill", notImplemented)
	api.POST("/orders/:id/reject", notImplemented)
	api.POST("/prescriptions", notImplemented)
	api.GET("/prescriptions", notImplemented)
}

func health(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := inv.Ping(c.Request.Context()); err != nil {
			log.WithError(err).Warn("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "msg": inventory.UserMessage(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"status": "healthy", "message": "API is running"}})
	}
}

// listProducts supports ?sort=name|price|quantity&order=asc|desc.
func listProducts(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var desc bool
		switch strings.ToLower(c.Query("order")) {
		case "", "asc":
		case "desc":
			desc = true
		default:
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "Order must be asc or desc"})
			return
		}

		list, err := inv.List(c.Request.Context(), c.Query("sort"), desc)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createProduct(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name     string   `json:"name"`
			Price    rawValue `json:"price"`
			Quantity rawValue `json:"quantity"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "Invalid request body"})
			return
		}

		p, err := inv.AddProduct(c.Request.Context(), req.Name, string(req.Price), string(req.Quantity))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": p})
	}
}

func productNames(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := inv.Names(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": names})
	}
}

func getProduct(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := inv.Get(c.Request.Context(), c.Param("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func productHistory(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := store.DefaultAuditLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxHistoryLimit {
				c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "Limit must be between 1 and 500"})
				return
			}
			limit = n
		}

		ctx := c.Request.Context()
		name := c.Param("name")
		if _, err := inv.Get(ctx, name); err != nil {
			writeError(c, err)
			return
		}
		audits, err := inv.History(ctx, name, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": audits})
	}
}

func setQuantity(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Quantity rawValue `json:"quantity"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "Invalid request body"})
			return
		}

		name := c.Param("name")
		qty, err := inv.SetQuantity(c.Request.Context(), name, string(req.Quantity))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"name": name, "quantity": qty}})
	}
}

func adjustQuantity(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Delta rawValue `json:"delta"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "Invalid request body"})
			return
		}

		name := c.Param("name")
		qty, err := inv.AdjustQuantity(c.Request.Context(), name, string(req.Delta))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"name": name, "quantity": qty}})
	}
}

func signup(users *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "Invalid request body"})
			return
		}

		u, err := users.Signup(c.Request.Context(), auth.SignupInput{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			Role:     req.Role,
		})
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "msg": "Username or email already exists"})
			return
		case errors.Is(err, store.ErrUnavailable):
			writeError(c, err)
			return
		case isSignupInputError(err):
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": capitalize(err.Error())})
			return
		default:
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": gin.H{
			"id":       u.ID,
			"username": u.Username,
			"email":    u.Email,
			"role":     u.Role,
		}})
	}
}

func isSignupInputError(err error) bool {
	for _, target := range []error{
		auth.ErrInvalidUsername,
		auth.ErrInvalidEmail,
		auth.ErrWeakPassword,
		auth.ErrPasswordTooLong,
		auth.ErrInvalidRole,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// login checks the lockout before the password so a locked account does
// not leak whether the password was right.
func login(users *auth.Service, guard *rediskey.LoginGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": "Invalid request body"})
			return
		}
		ctx := c.Request.Context()
		username := strings.TrimSpace(req.Username)

		if guard != nil {
			locked, err := guard.Locked(ctx, username)
			if err != nil {
				log.WithError(err).Warn("login guard unavailable")
			} else if locked {
				c.JSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "msg": "Too many failed login attempts, try again later"})
				return
			}
		}

		sess, err := users.Login(ctx, username, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			if guard != nil {
				if _, gerr := guard.RecordFailure(ctx, username); gerr != nil {
					log.WithError(gerr).Warn("login guard record failure")
				}
			}
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "Invalid username or password"})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}

		if guard != nil {
			if err := guard.Reset(ctx, username); err != nil {
				log.WithError(err).Warn("login guard reset")
			}
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": sess})
	}
}

func me() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := c.MustGet(middleware.ClaimsKey).(*auth.Claims)
		var expiresAt time.Time
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"username":   claims.Username,
			"role":       claims.Role,
			"expires_at": expiresAt,
		}})
	}
}

func notImplemented(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"code": http.StatusNotImplemented, "msg": "Not implemented yet"})
}

// writeError maps service errors to a status code and a user facing message.
func writeError(c *gin.Context, err error) {
	var verr *validation.Error
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrInvalidSortKey):
		status = http.StatusBadRequest
	case errors.Is(err, inventory.ErrProductNotFound):
		status = http.StatusNotFound
	case errors.Is(err, inventory.ErrDuplicateName), errors.Is(err, store.ErrQuantityOutOfRange),
		errors.Is(err, store.ErrDuplicateRecords):
		status = http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"code": status, "msg": inventory.UserMessage(err)})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
