package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"classtracker/internal/auth"
	"classtracker/internal/billing"
	"classtracker/internal/cloudinary"
	"classtracker/internal/config"
	"classtracker/internal/httpmiddleware"
	"classtracker/internal/logging"
	"classtracker/internal/queue"
	"classtracker/internal/report"
	"classtracker/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx := context.Background()

	var db *store.DB
	var billingStore billing.Store
	if cfg.StoreBackend == "memory" {
		billingStore = billing.NewMemoryStore()
		logger.Warn("using in-memory store; data will not survive a restart")
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if err := store.Migrate(ctx, db.Client, cfg.MigrationsDir); err != nil {
			return err
		}
		billingStore = billing.NewPostgresStore(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtracker:payments")
	}

	svc := billing.NewService(billingStore, logger)

	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		logger.Info("cloudinary not configured; photo upload disabled")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, redisClient.Client).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db == nil || db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/clients/register", func(c *gin.Context) {
		var req struct {
			ClientID        string `json:"client_id" binding:"required"`
			RegistrationKey string `json:"registration_key"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if cfg.RegistrationKey != "" && req.RegistrationKey != cfg.RegistrationKey {
			c.JSON(http.StatusForbidden, gin.H{"error": "registration key mismatch"})
			return
		}
		tokens, err := auth.Issue(req.ClientID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	v1 := r.Group("/v1", auth.RequireToken(cfg.JWTSigningKey, cfg.JWTIssuer))

	v1.GET("/students", func(c *gin.Context) {
		students, err := svc.ListStudents(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		views := make([]studentView, len(students))
		for i, st := range students {
			views[i] = toStudentView(st)
		}
		c.JSON(http.StatusOK, gin.H{"students": views})
	})

	v1.POST("/students", func(c *gin.Context) {
		var req studentPayload
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		days, err := billing.ParseDays(req.DaysOfWeek)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		st, err := svc.CreateStudent(c.Request.Context(), billing.CreateStudentDTO{
			Name:          req.Name,
			HourlyRate:    req.HourlyRate,
			ScheduledDays: days,
			StartTime:     req.StartTime,
			EndTime:       req.EndTime,
			ImageURL:      req.ImageURL,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, toStudentView(st))
	})

	v1.GET("/students/:id", func(c *gin.Context) {
		st, err := svc.GetStudent(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toStudentView(st))
	})

	v1.PATCH("/students/:id", func(c *gin.Context) {
		var req studentPayload
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		days, err := billing.ParseDays(req.DaysOfWeek)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		st, err := svc.UpdateProfile(c.Request.Context(), c.Param("id"), billing.UpdateProfileDTO{
			Name:          req.Name,
			HourlyRate:    req.HourlyRate,
			ScheduledDays: days,
			StartTime:     req.StartTime,
			EndTime:       req.EndTime,
			ImageURL:      req.ImageURL,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toStudentView(st))
	})

	v1.DELETE("/students/:id", func(c *gin.Context) {
		if err := svc.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	v1.PUT("/students/:id/attendance/:day", func(c *gin.Context) {
		day, err := billing.ParseDay(c.Param("day"))
		if err != nil {
			respondError(c, logger, err)
			return
		}
		var req struct {
			Attended *bool `json:"attended" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.SetAttendance(c.Request.Context(), c.Param("id"), day, *req.Attended); err != nil {
			respondError(c, logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	v1.POST("/students/:id/payments", func(c *gin.Context) {
		var req struct {
			Amount decimal.Decimal `json:"amount"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := svc.ApplyPayment(c.Request.Context(), c.Param("id"), req.Amount)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		if err := q.Publish(c.Request.Context(), queue.Message{Type: "payment", Body: rec.StudentID}); err != nil {
			logger.Warn("queue publish failed", zap.Error(err))
		}
		c.JSON(http.StatusCreated, toPaymentView(rec))
	})

	v1.GET("/payments", func(c *gin.Context) {
		var payments []*billing.PaymentRecord
		var err error
		if studentID := c.Query("student_id"); studentID != "" {
			payments, err = svc.ListPaymentsForStudent(c.Request.Context(), studentID)
		} else {
			payments, err = svc.ListPayments(c.Request.Context())
		}
		if err != nil {
			respondError(c, logger, err)
			return
		}
		views := make([]paymentView, len(payments))
		for i, p := range payments {
			views[i] = toPaymentView(p)
		}
		c.JSON(http.StatusOK, gin.H{"payments": views})
	})

	v1.GET("/reports/due", func(c *gin.Context) {
		students, err := svc.ListStudents(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		entries := report.StudentsWithDue(students)
		out := make([]gin.H, len(entries))
		for i, e := range entries {
			out[i] = gin.H{
				"id":          e.Student.ID,
				"name":        e.Student.Name,
				"hourly_rate": e.Student.HourlyRate,
				"due":         e.Due,
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"total_due": report.TotalDue(students),
			"students":  out,
		})
	})

	v1.GET("/reports/collected", func(c *gin.Context) {
		rng, err := parseRange(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		payments, err := svc.ListPayments(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		students, err := svc.ListStudents(c.Request.Context())
		if err != nil {
			respondError(c, logger, err)
			return
		}
		names := make(map[string]string, len(students))
		for _, st := range students {
			names[st.ID] = st.Name
		}

		filtered := report.FilterPayments(payments, rng)
		out := make([]gin.H, len(filtered))
		for i, p := range filtered {
			name, ok := names[p.StudentID]
			if !ok {
				// The log outlives deleted students.
				name = "Unknown Student"
			}
			out[i] = gin.H{
				"id":           p.ID,
				"student_id":   p.StudentID,
				"student_name": name,
				"amount":       p.Amount,
				"paid_at":      p.PaidAt,
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"total":              report.CollectedInRange(payments, rng),
			"lifetime_collected": report.LifetimeCollected(students),
			"payments":           out,
		})
	})

	v1.POST("/upload", func(c *gin.Context) {
		if cdnClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return
		}
		var result *cloudinary.UploadResult
		var err error
		switch {
		case strings.Contains(c.ContentType(), "multipart/form-data"):
			file, header, ferr := c.Request.FormFile("file")
			if ferr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
				return
			}
			defer file.Close()
			data, ferr := io.ReadAll(file)
			if ferr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
				return
			}
			result, err = cdnClient.UploadBytes(data, header.Filename)
		default:
			var body struct {
				Data string `json:"data" binding:"required"`
			}
			if berr := c.ShouldBindJSON(&body); berr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
				return
			}
			result, err = cdnClient.UploadBase64(body.Data)
		}
		if err != nil {
			logger.Warn("cloudinary upload failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": result.SecureURL, "public_id": result.PublicID})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

// studentPayload is shared by create and update.
type studentPayload struct {
	Name       string          `json:"name" binding:"required"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	DaysOfWeek []string        `json:"days_of_week"`
	StartTime  string          `json:"start_time"`
	EndTime    string          `json:"end_time"`
	ImageURL   string          `json:"image_url"`
}

type studentView struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	ImageURL           string          `json:"image_url,omitempty"`
	HourlyRate         decimal.Decimal `json:"hourly_rate"`
	DaysOfWeek         []string        `json:"days_of_week"`
	StartTime          string          `json:"start_time,omitempty"`
	EndTime            string          `json:"end_time,omitempty"`
	Attendance         map[string]bool `json:"attendance"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	TotalCollected     decimal.Decimal `json:"total_collected"`
	WeekStart          time.Time       `json:"week_start"`
	CycleCost          decimal.Decimal `json:"cycle_cost"`
	Due                decimal.Decimal `json:"due"`
}

func toStudentView(st *billing.Student) studentView {
	attendance := make(map[string]bool, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		attendance[d.String()] = st.Attendance[d]
	}
	return studentView{
		ID:                 st.ID,
		Name:               st.Name,
		ImageURL:           st.ImageURL,
		HourlyRate:         st.HourlyRate,
		DaysOfWeek:         billing.DayNames(st.ScheduledDays),
		StartTime:          st.StartTime,
		EndTime:            st.EndTime,
		Attendance:         attendance,
		PaidAmount:         st.PaidAmount,
		OutstandingBalance: st.OutstandingBalance,
		TotalCollected:     st.TotalCollected,
		WeekStart:          st.WeekStart,
		CycleCost:          st.CycleCost(),
		Due:                st.Due(),
	}
}

type paymentView struct {
	ID        string          `json:"id"`
	StudentID string          `json:"student_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
}

func toPaymentView(p *billing.PaymentRecord) paymentView {
	return paymentView{ID: p.ID, StudentID: p.StudentID, Amount: p.Amount, PaidAt: p.PaidAt}
}

// parseRange maps the range query params onto a report.Range.
func parseRange(c *gin.Context) (report.Range, error) {
	switch c.DefaultQuery("range", "all_time") {
	case "current_month":
		return report.CurrentMonth(time.Now()), nil
	case "last_month":
		return report.PreviousMonth(time.Now()), nil
	case "all_time":
		return report.AllTime(), nil
	case "custom":
		var rng report.Range
		if v := c.Query("start"); v != "" {
			start, err := time.Parse("2006-01-02", v)
			if err != nil {
				return report.Range{}, errors.New("invalid start date, want YYYY-MM-DD")
			}
			rng.Start = start
		}
		if v := c.Query("end"); v != "" {
			end, err := time.Parse("2006-01-02", v)
			if err != nil {
				return report.Range{}, errors.New("invalid end date, want YYYY-MM-DD")
			}
			rng.End = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return rng, nil
	default:
		return report.Range{}, errors.New("unknown range, want current_month|last_month|all_time|custom")
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, billing.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, billing.ErrInvalidAmount), errors.Is(err, billing.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
