package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/cleanup"
	"bitbucket.org/mmdatafocus/orders_retention/config"
	"bitbucket.org/mmdatafocus/orders_retention/models"
	"bitbucket.org/mmdatafocus/orders_retention/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const defaultPort = "8080"

var tracer = otel.Tracer("orders-retention")

// deps bundles the per-request component graph. Everything hangs off the
// global DB handle, so building it per request is just struct wiring.
type deps struct {
	db        *gorm.DB
	settings  *models.SettingStore
	orders    *models.OrderStore
	triggers  *models.TriggerSchedule
	notices   *models.NoticeStore
	scheduler *cleanup.PipelineScheduler
	emitter   *cleanup.NoticeEmitter
	watcher   *cleanup.SettingsWatcher
}

func newDeps(logger *logrus.Logger) *deps {
	db := config.GetDB()
	settings := models.NewSettingStore(db)
	orders := models.NewOrderStore(db)
	triggers := models.NewTriggerSchedule(db)
	notices := models.NewNoticeStore(db)
	scheduler := cleanup.NewPipelineScheduler(triggers, settings, logger)
	emitter := cleanup.NewNoticeEmitter(notices, triggers, logger)
	return &deps{
		db:        db,
		settings:  settings,
		orders:    orders,
		triggers:  triggers,
		notices:   notices,
		scheduler: scheduler,
		emitter:   emitter,
		watcher:   cleanup.NewSettingsWatcher(scheduler, emitter, settings, orders, logger),
	}
}

// settingsInput carries a partial settings update. Only provided keys are
// written; each write is routed through the settings watcher.
type settingsInput struct {
	CleanFrequency *string `json:"clean_frequency" binding:"omitempty,oneof='' daily weekly monthly yearly"`
	DateCount      *int    `json:"date_count" binding:"omitempty,min=1"`
	DateThreshold  *string `json:"date_treshold" binding:"omitempty,oneof=days months years"`
	Timezone       *string `json:"timezone"`
}

// correlationMiddleware attaches a correlation id to the request context,
// generating one when the caller did not send x-correlation-id.
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// identityMiddleware resolves the acting operator from the X-User-Id header
// (or user_id query param) the host application forwards, and stores it in
// the request context.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-Id")
		if raw == "" {
			raw = c.Query("user_id")
		}
		if id, err := strconv.Atoi(raw); err == nil && id > 0 {
			c.Request = c.Request.WithContext(utils.SetUserIdInContext(c.Request.Context(), id))
		}
		c.Next()
	}
}

func actingUserID(c *gin.Context) int {
	id, _ := utils.GetUserIdFromContext(c.Request.Context())
	return id
}

func getSettingsHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := newDeps(logger)
		ctx := c.Request.Context()

		freq, err := d.settings.CleanFrequency(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		count, unit, err := d.settings.ThresholdConfig(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		tz, err := d.settings.Get(ctx, models.SettingTimezone, models.DefaultTimezone)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"clean_frequency": string(freq),
			"date_count":      count,
			"date_treshold":   string(unit),
			"timezone":        tz,
		})
	}
}

func putSettingsHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input settingsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			if fields := utils.ProcessValidationErrors(err); fields != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings", "fields": fields})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		d := newDeps(logger)
		ctx, span := tracer.Start(c.Request.Context(), "settings.update")
		defer span.End()
		userID := actingUserID(c)

		writes := []struct {
			key   string
			value *string
		}{
			{models.SettingDateCount, intToStringPtr(input.DateCount)},
			{models.SettingDateThreshold, input.DateThreshold},
			{models.SettingTimezone, input.Timezone},
			// Frequency last so the re-armed schedule reflects the other
			// settings written in the same request.
			{models.SettingCleanFrequency, input.CleanFrequency},
		}
		for _, w := range writes {
			if w.value == nil {
				continue
			}
			old, err := d.settings.Set(ctx, w.key, *w.value)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			change := models.SettingChange{Key: w.key, Old: old, New: *w.value, UserId: userID}
			if err := d.watcher.OnSettingChanged(ctx, change); err != nil {
				cid, _ := utils.GetCorrelationIdFromContext(ctx)
				config.LogError(logger, "server", "putSettingsHandler", "setting change",
					map[string]string{"key": change.Key, "correlation_id": cid}, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.Status(http.StatusNoContent)
	}
}

func intToStringPtr(v *int) *string {
	if v == nil {
		return nil
	}
	s := strconv.Itoa(*v)
	return &s
}

func getNoticesHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := newDeps(logger)
		ctx := c.Request.Context()

		out := []gin.H{}
		if notice, err := d.notices.ConsumeAndClear(ctx, actingUserID(c)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		} else if notice != nil {
			out = append(out, gin.H{
				"severity": string(notice.Severity),
				"message":  notice.Message,
			})
		}

		missing, err := d.emitter.ScheduleMissing(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if missing {
			out = append(out, gin.H{
				"severity": string(models.NoticeSeverityWarning),
				"message":  cleanup.ScheduleMissingMessage,
			})
		}
		c.JSON(http.StatusOK, gin.H{"notices": out})
	}
}

func getStatusHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := newDeps(logger)
		ctx := c.Request.Context()

		pending, err := d.triggers.Pending(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		triggers := make([]gin.H, 0, len(pending))
		for _, t := range pending {
			triggers = append(triggers, gin.H{
				"stage":     t.Stage,
				"fire_at":   t.FireAt.UTC().Format(time.RFC3339),
				"recurring": t.RecurSeconds > 0,
				"attempts":  t.Attempts,
			})
		}

		status := gin.H{"pending_triggers": triggers}
		count, unit, err := d.settings.ThresholdConfig(ctx)
		if err == nil {
			if threshold, terr := cleanup.ThresholdDate(count, unit, time.Now().In(d.settings.Location(ctx))); terr == nil {
				if eligible, cerr := d.orders.CountEligible(ctx, threshold); cerr == nil {
					status["eligible_orders"] = eligible
					status["threshold_date"] = threshold.Format(time.RFC3339)
				}
			}
		}
		c.JSON(http.StatusOK, status)
	}
}

func runNowHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := newDeps(logger)
		ctx, span := tracer.Start(c.Request.Context(), "cleanup.run_now")
		defer span.End()
		if err := d.scheduler.TriggerEntryNow(ctx); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())
	r.Use(correlationMiddleware())
	r.Use(identityMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := r.Group("/api")
	api.GET("/settings", getSettingsHandler(logger))
	api.PUT("/settings", putSettingsHandler(logger))
	api.GET("/notices", getNoticesHandler(logger))
	api.GET("/status", getStatusHandler(logger))
	api.POST("/run-now", runNowHandler(logger))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow disabling migrations
	// on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// The shop schema is this service's host application. Refusing to start
	// without it beats endlessly retrying stages against missing tables.
	if err := models.EnsureShopSchema(db); err != nil {
		logger.WithFields(logrus.Fields{"field": "startup"}).Error(err.Error())
		log.Fatal(err)
	}

	// Start the trigger dispatcher.
	d := newDeps(logger)
	runner := cleanup.NewStageRunner(d.orders, d.scheduler, d.settings, logger)
	dispatcher := cleanup.NewDispatcher(d.triggers, runner, config.GetRedisLock(), logger)
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go dispatcher.Run(dispatcherCtx)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("order retention service listening on :", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop the dispatcher first so no new stage starts while draining.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("shutdown: " + err.Error())
	}
}
