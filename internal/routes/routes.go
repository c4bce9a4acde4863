package routes

import (
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nkamali/MentorAppBack/internal/config"
	"github.com/nkamali/MentorAppBack/internal/handlers"
	"github.com/nkamali/MentorAppBack/internal/jobs"
	"github.com/nkamali/MentorAppBack/internal/middleware"
	"github.com/nkamali/MentorAppBack/internal/repository"
	"github.com/nkamali/MentorAppBack/internal/services"
	eventws "github.com/nkamali/MentorAppBack/internal/websocket"
)

// RegisterRoutes wires repositories, services and handlers onto the app and
// returns the background job scheduler for the caller to start.
func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) (*jobs.Scheduler, error) {
	userRepo := repository.NewUserRepository(db)
	mentorProfileRepo := repository.NewMentorProfileRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	callRepo := repository.NewCallRepository(db)
	groupSessionRepo := repository.NewGroupSessionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	reminderRepo := repository.NewReminderRepository(db)

	clock := services.SystemClock()
	policy := services.DefaultPolicy()
	policy.RefundCutoff = time.Duration(cfg.RefundCutoffHours) * time.Hour
	policy.QuorumWindow = time.Duration(cfg.QuorumWindowHours) * time.Hour
	policy.RequestTTL = time.Duration(cfg.RequestTTLMinutes) * time.Minute

	var notifier services.Notifier = services.LogNotifier{}
	if cfg.SendGridAPIKey != "" {
		notifier = services.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName)
	}

	var rooms services.RoomProvisioner = services.NewStaticRoomProvisioner("")
	if cfg.VideoAPIBaseURL != "" && cfg.VideoAPIKey != "" {
		rooms = services.NewHTTPRoomProvisioner(cfg.VideoAPIBaseURL, cfg.VideoAPIKey)
	}

	hub := eventws.NewHub()
	go hub.Run()

	resolver := services.NewSlotResolver(availabilityRepo, callRepo, policy)
	availabilityService := services.NewAvailabilityService(availabilityRepo, clock, policy)
	reminderService := services.NewReminderService(reminderRepo, callRepo, groupSessionRepo, userRepo, notifier, clock)
	bookingService := services.NewBookingService(
		callRepo,
		paymentRepo,
		userRepo,
		mentorProfileRepo,
		resolver,
		rooms,
		reminderService,
		notifier,
		hub,
		clock,
		policy,
	)
	groupSessionService := services.NewGroupSessionService(
		groupSessionRepo,
		userRepo,
		rooms,
		reminderService,
		notifier,
		hub,
		clock,
		policy,
	)
	stripeService := services.NewStripeService(paymentRepo, cfg.StripeAPIKey, cfg.StripeSuccessURL, cfg.StripeCancelURL)

	authHandler := handlers.NewAuthHandler(db, userRepo, mentorProfileRepo, cfg.JWTSecret)
	profileHandler := handlers.NewProfileHandler(mentorProfileRepo, userRepo)
	availabilityHandler := handlers.NewAvailabilityHandler(availabilityService, resolver)
	bookingHandler := handlers.NewBookingHandler(bookingService, stripeService, userRepo)
	groupSessionHandler := handlers.NewGroupSessionHandler(groupSessionService)
	stripeWebhookHandler := handlers.NewStripeWebhookHandler(cfg.StripeWebhookSecret, stripeService, bookingService)
	eventsHandler := handlers.NewEventsHandler(hub, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	api.Post("/webhooks/stripe", stripeWebhookHandler.HandleWebhook)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	mentors := authProtected.Group("/mentors")
	mentors.Put("/profile", middleware.MentorOnly(), profileHandler.UpdateMyProfile)
	mentors.Get("/:id", profileHandler.GetMentorProfile)
	mentors.Get("/:id/slots", availabilityHandler.ListMentorSlots)

	availability := authProtected.Group("/availability", middleware.MentorOnly())
	availability.Get("", availabilityHandler.Overview)
	availability.Post("/slots", availabilityHandler.AddSlot)
	availability.Delete("/slots/:id", availabilityHandler.RemoveSlot)
	availability.Post("/blocks", availabilityHandler.BlockDate)
	availability.Delete("/blocks/:id", availabilityHandler.UnblockDate)

	calls := authProtected.Group("/calls")
	calls.Post("", bookingHandler.RequestCall)
	calls.Get("", bookingHandler.ListCalls)
	calls.Get("/:id", bookingHandler.GetCall)
	calls.Post("/:id/checkout", bookingHandler.Checkout)
	calls.Post("/:id/decline", bookingHandler.Decline)
	calls.Post("/:id/cancel", bookingHandler.Cancel)

	sessions := authProtected.Group("/sessions")
	sessions.Post("", groupSessionHandler.Create)
	sessions.Get("", groupSessionHandler.List)
	sessions.Get("/:id", groupSessionHandler.Get)
	sessions.Patch("/:id", groupSessionHandler.Edit)
	sessions.Post("/:id/join", groupSessionHandler.Join)
	sessions.Post("/:id/leave", groupSessionHandler.Leave)
	sessions.Post("/:id/cancel", groupSessionHandler.Cancel)

	api.Use("/v1/ws", eventsHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(eventsHandler.HandleWebSocket))

	return jobs.NewScheduler(bookingService, groupSessionService, reminderService)
}
