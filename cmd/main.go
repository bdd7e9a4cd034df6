package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/valdigley/studio-booking/internal/booking"
	"github.com/valdigley/studio-booking/internal/config"
	"github.com/valdigley/studio-booking/internal/db"
	"github.com/valdigley/studio-booking/internal/gallery"
	"github.com/valdigley/studio-booking/internal/gateway"
	"github.com/valdigley/studio-booking/internal/handlers"
	"github.com/valdigley/studio-booking/internal/model"
	"github.com/valdigley/studio-booking/internal/notify"
	"github.com/valdigley/studio-booking/internal/repository"
	"github.com/valdigley/studio-booking/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	// 1. DB config from env.
	dbCfg, err := config.LoadDBConfig()
	if err != nil {
		log.Fatalf("load db config: %v", err)
	}

	// 2. Connect via GORM.
	gormDB, err := db.NewGormDB(dbCfg)
	if err != nil {
		log.Fatalf("init db: %v", err)
	}

	// 3. Model migrations.
	if err := model.AutoMigrate(gormDB); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("sql DB: %v", err)
	}
	defer sqlDB.Close()

	// 4. Repositories.
	appointmentRepo := repository.NewGormAppointmentRepository(gormDB)
	paymentRepo := repository.NewGormPaymentRepository(gormDB)
	galleryRepo := repository.NewGormGalleryRepository(gormDB)
	photoRepo := repository.NewGormPhotoRepository(gormDB)
	clientRepo := repository.NewGormClientRepository(gormDB)
	settingsRepo := repository.NewGormSettingsRepository(gormDB)
	notificationRepo := repository.NewGormNotificationRepository(gormDB)

	// 5. Services. Gateways are built per tenant from stored credentials.
	newGateway := func(accessToken string) gateway.Charger {
		return gateway.NewClient(accessToken)
	}
	notifier := notify.NewService(notificationRepo)

	bookingSvc := booking.NewService(gormDB, appointmentRepo, settingsRepo, notifier, newGateway)
	gallerySvc := gallery.NewService(galleryRepo, photoRepo, paymentRepo, appointmentRepo, clientRepo, settingsRepo, notifier, newGateway)
	reconciler := webhook.NewReconciler(gormDB, paymentRepo, appointmentRepo, galleryRepo, clientRepo, settingsRepo, notifier, newGateway, nil)

	// 6. Notification delivery loop.
	dispatcher := notify.NewDispatcher(notificationRepo, settingsRepo, notify.NewWhatsAppSender())
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-dispatchCtx.Done():
				return
			case <-ticker.C:
				if err := dispatcher.Flush(dispatchCtx, 50); err != nil {
					log.Printf("notification flush: %v", err)
				}
			}
		}
	}()

	// 7. Router.
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	handlers.New(bookingSvc, gallerySvc, reconciler).Register(r)

	addr := ":" + envOr("PORT", "8080")
	server := &http.Server{Addr: addr, Handler: r}

	log.Printf("studio booking server listening on %s", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve: %v", err)
		}
	}()

	// 8. Graceful shutdown on signal.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down...")
	stopDispatch()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
