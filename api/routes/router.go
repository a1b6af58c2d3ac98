package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rohanbasu/trendora-backend/api/controllers"
	"github.com/rohanbasu/trendora-backend/api/middleware"
	"github.com/rohanbasu/trendora-backend/internal/assignments"
	"github.com/rohanbasu/trendora-backend/internal/delivery"
	"github.com/rohanbasu/trendora-backend/internal/notify"
	"github.com/rohanbasu/trendora-backend/internal/stats"
	"github.com/rohanbasu/trendora-backend/pkg/config"
	"github.com/rohanbasu/trendora-backend/pkg/db"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
	"github.com/rohanbasu/trendora-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	metricsRegistry *prometheus.Registry,
	deliveryService delivery.Service,
	assignmentsService assignments.Service,
	statsService stats.Service,
	notifyService notify.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notifyService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notifyService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notifyService, logg))
		})

		r.Route("/v1/agent", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.MemberRoleAgent), logg))

			r.Get("/stats", controllers.AgentStats(statsService, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AgentListOrders(assignmentsService, logg))
				r.Post("/bulk-accept", controllers.AgentBulkAccept(assignmentsService, logg))
				r.Post("/bulk-reject", controllers.AgentBulkReject(assignmentsService, logg))

				r.Route("/{orderId}", func(r chi.Router) {
					r.Get("/", controllers.AgentGetOrder(deliveryService, logg))
					r.Post("/accept", controllers.AgentAcceptOrder(deliveryService, logg))
					r.Post("/reject", controllers.AgentRejectOrder(deliveryService, logg))
					r.Post("/reached-seller-location", controllers.AgentReachedSellerLocation(deliveryService, logg))
					r.Post("/complete-pickup", controllers.AgentCompletePickup(deliveryService, logg))
					r.Post("/reached-location", controllers.AgentReachedBuyerLocation(deliveryService, logg))
					r.Post("/generate-qr", controllers.AgentGenerateQR(deliveryService, logg))
					r.Post("/check-payment-status", controllers.AgentCheckPaymentStatus(deliveryService, logg))
					r.Post("/send-otp", controllers.AgentSendOTP(deliveryService, logg))
					r.Post("/resend-otp", controllers.AgentResendOTP(deliveryService, logg))
					r.Post("/verify-otp", controllers.AgentVerifyOTP(deliveryService, logg))
					r.Post("/mark-cash-collected", controllers.AgentMarkCashCollected(deliveryService, logg))
					r.Post("/complete-delivery", controllers.AgentCompleteDelivery(deliveryService, logg))
					r.Post("/cancel", controllers.AgentCancelOrder(deliveryService, logg))
				})
			})
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.MemberRoleAdmin), logg))
			r.Post("/orders/{orderId}/assign", controllers.AdminAssignOrder(assignmentsService, logg))
		})
	})

	return r
}
