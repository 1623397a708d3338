package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schedoosh/internal/attendance"
	"schedoosh/internal/auth"
	"schedoosh/internal/campus"
	"schedoosh/internal/config"
	"schedoosh/internal/geofence"
	"schedoosh/internal/group"
	"schedoosh/internal/httpmiddleware"
	"schedoosh/internal/notify"
	"schedoosh/internal/queue"
	"schedoosh/internal/schedule"
	"schedoosh/internal/store"
	"schedoosh/internal/user"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.OpenDB(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "schedoosh:events")
	}

	var ledger attendance.Ledger
	if cfg.LedgerBackend == "memory" {
		ledger = attendance.NewMemoryLedger()
	} else {
		ledger = attendance.NewRedisLedger(redisClient.Client)
	}

	users := user.NewRepository(db.DB)
	classes := schedule.NewRepository(db.DB)
	groups := group.NewRepository(db.DB)
	feed := notify.NewRepository(db.DB)

	engine := attendance.NewEngine(classes, ledger, users, q)

	directory, err := loadDirectory(cfg)
	if err != nil {
		return err
	}
	fence := geofence.NewValidator(directory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx, cfg.ScanInterval)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin).Handler())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/api/auth/register", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := users.Create(c.Request.Context(), req.Username, hash)
		if err != nil {
			if errors.Is(err, user.ErrUsernameTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			return
		}
		issueTokens(c, cfg, users, u, http.StatusCreated)
	})

	r.POST("/api/auth/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := users.ByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrBadCredentials.Error()})
			return
		}
		if err := auth.CheckPassword(u.PasswordHash(), req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrBadCredentials.Error()})
			return
		}
		issueTokens(c, cfg, users, u, http.StatusOK)
	})

	r.POST("/api/auth/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, err := auth.Parse(req.RefreshToken, cfg.JWTSigningKey, cfg.JWTIssuer)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		valid, err := users.RefreshTokenValid(c.Request.Context(), claims.Subject, req.RefreshToken)
		if err != nil || !valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		u, err := users.ByID(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		_ = users.RevokeRefreshToken(c.Request.Context(), req.RefreshToken)
		issueTokens(c, cfg, users, u, http.StatusOK)
	})

	api := r.Group("/api", auth.RequireUser(cfg.JWTSigningKey, cfg.JWTIssuer))

	api.GET("/me", func(c *gin.Context) {
		u, err := users.ByID(c.Request.Context(), auth.UserID(c))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": u.ID, "username": u.Username, "score": u.Score})
	})

	api.GET("/events", func(c *gin.Context) {
		list, err := classes.ListForUser(c.Request.Context(), auth.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": list})
	})

	api.POST("/events", func(c *gin.Context) {
		var req struct {
			Title        string `json:"title" binding:"required"`
			Weekday      int    `json:"weekday" binding:"required"`
			Hour         int    `json:"hour"`
			Minute       int    `json:"minute"`
			BuildingCode string `json:"building_code"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cl, err := classes.Insert(c.Request.Context(), schedule.Class{
			UserID:       auth.UserID(c),
			Title:        req.Title,
			Weekday:      req.Weekday,
			Hour:         req.Hour,
			Minute:       req.Minute,
			Enabled:      true,
			BuildingCode: geofence.NormalizeCode(req.BuildingCode),
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, cl)
	})

	api.PUT("/events/:id", func(c *gin.Context) {
		var req struct {
			Title        string `json:"title" binding:"required"`
			Weekday      int    `json:"weekday" binding:"required"`
			Hour         int    `json:"hour"`
			Minute       int    `json:"minute"`
			Enabled      *bool  `json:"enabled"`
			BuildingCode string `json:"building_code"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		err := classes.Update(c.Request.Context(), schedule.Class{
			ID:           c.Param("id"),
			UserID:       auth.UserID(c),
			Title:        req.Title,
			Weekday:      req.Weekday,
			Hour:         req.Hour,
			Minute:       req.Minute,
			Enabled:      enabled,
			BuildingCode: geofence.NormalizeCode(req.BuildingCode),
		})
		if errors.Is(err, schedule.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
	})

	api.PATCH("/events/:id", func(c *gin.Context) {
		var req struct {
			Enabled *bool `json:"enabled" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		err := classes.SetEnabled(c.Request.Context(), auth.UserID(c), c.Param("id"), *req.Enabled)
		if errors.Is(err, schedule.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
	})

	api.DELETE("/events/:id", func(c *gin.Context) {
		err := classes.Delete(c.Request.Context(), auth.UserID(c), c.Param("id"))
		if errors.Is(err, schedule.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	})

	api.GET("/events/status", func(c *gin.Context) {
		list, err := classes.ListForUser(c.Request.Context(), auth.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		type classStatus struct {
			schedule.Class
			Status     string `json:"status"`
			Label      string `json:"label"`
			CanCheckIn bool   `json:"can_check_in"`
		}
		out := make([]classStatus, 0, len(list))
		for _, cl := range list {
			st, err := engine.ClassStatus(c.Request.Context(), cl)
			if err != nil {
				out = append(out, classStatus{Class: cl, Status: "error", Label: "Time error"})
				continue
			}
			out = append(out, classStatus{
				Class:      cl,
				Status:     st.String(),
				Label:      st.Label(),
				CanCheckIn: st == attendance.StatusOpen,
			})
		}
		c.JSON(http.StatusOK, gin.H{"classes": out, "last_message": engine.LastMessage()})
	})

	api.POST("/checkins", func(c *gin.Context) {
		var req struct {
			EventID   string   `json:"event_id" binding:"required"`
			Lat       *float64 `json:"lat"`
			Lon       *float64 `json:"lon"`
			AccuracyM float64  `json:"accuracy_m"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cl, err := classes.Get(c.Request.Context(), auth.UserID(c), req.EventID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}

		// Geofencing only applies when the class names a building; the guard
		// runs after the time-window check inside the engine.
		var guard attendance.CheckInGuard
		if cl.BuildingCode != "" {
			if req.Lat == nil || req.Lon == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon required for geofenced check-in"})
				return
			}
			fix := geofence.StaticProvider{Lat: *req.Lat, Lon: *req.Lon, AccuracyM: req.AccuracyM}
			guard = func(ctx context.Context) error {
				return fence.Validate(ctx, cl.BuildingCode, fix)
			}
		}

		msg, err := engine.CheckIn(c.Request.Context(), cl, guard)
		if err != nil {
			c.JSON(checkInStatusCode(err), gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg, "status": "checked_in"})
	})

	api.POST("/checkins/scan", func(c *gin.Context) {
		scored, err := engine.RunOnce(c.Request.Context(), true)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"scored": scored, "message": engine.LastMessage()})
	})

	api.POST("/attendance/reset", func(c *gin.Context) {
		if err := engine.ResetLedger(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	})

	api.GET("/notifications", func(c *gin.Context) {
		limit := 50
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		list, err := feed.ListForUser(c.Request.Context(), auth.UserID(c), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": list})
	})

	api.POST("/groups", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		g, err := groups.Create(c.Request.Context(), req.Name, auth.UserID(c))
		if err != nil {
			if errors.Is(err, group.ErrNameTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "group name already taken"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, g)
	})

	api.GET("/groups", func(c *gin.Context) {
		list, err := groups.ListForUser(c.Request.Context(), auth.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"groups": list})
	})

	api.GET("/groups/:id", func(c *gin.Context) {
		g, err := groups.Get(c.Request.Context(), c.Param("id"), auth.UserID(c))
		if err != nil {
			if errors.Is(err, group.ErrNotMember) {
				c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this group"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, g)
	})

	api.POST("/groups/:id/join", func(c *gin.Context) {
		err := groups.Join(c.Request.Context(), c.Param("id"), auth.UserID(c))
		if errors.Is(err, group.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "joined"})
	})

	api.POST("/groups/:id/leave", func(c *gin.Context) {
		err := groups.Leave(c.Request.Context(), c.Param("id"), auth.UserID(c))
		if errors.Is(err, group.ErrNotMember) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not a member of this group"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "left"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// loadDirectory prefers a local buildings file; otherwise it pulls the list
// from the campus service (or its built-in mock set when skipped).
func loadDirectory(cfg config.App) (*geofence.Directory, error) {
	if cfg.BuildingsPath != "" {
		return geofence.LoadDirectory(cfg.BuildingsPath)
	}
	client := campus.New(cfg.CampusAPIURL, cfg.CampusSkip)
	if err := client.Health(context.Background()); err != nil {
		log.Printf("warning: campus service not available: %v", err)
	}
	buildings, err := client.FetchBuildings(context.Background())
	if err != nil {
		return nil, err
	}
	log.Printf("building directory loaded: %d buildings", len(buildings))
	return geofence.NewDirectory(buildings), nil
}

func issueTokens(c *gin.Context, cfg config.App, users *user.Repository, u user.User, status int) {
	tokens, err := auth.Issue(u.ID, u.Username, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	_ = users.SaveRefreshToken(c.Request.Context(), u.ID, tokens.RefreshToken, tokens.RefreshExp)
	c.JSON(status, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func checkInStatusCode(err error) int {
	switch {
	case errors.Is(err, attendance.ErrAlreadyCheckedIn),
		errors.Is(err, attendance.ErrAlreadyMissed):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrWindowNotOpen),
		errors.Is(err, attendance.ErrNotToday),
		errors.Is(err, attendance.ErrTimeResolution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, geofence.ErrNoBuildingCode),
		errors.Is(err, geofence.ErrUnknownBuilding),
		errors.Is(err, geofence.ErrPoorAccuracy),
		errors.Is(err, geofence.ErrLocationTimeout),
		errors.Is(err, geofence.ErrRequestInProgress):
		return http.StatusForbidden
	}
	var tooFar *geofence.TooFarError
	if errors.As(err, &tooFar) {
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// CORS middleware for browser requests
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

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
