package routes

import (
	"github.com/Dosada05/tournament-payouts/handlers"
	"github.com/Dosada05/tournament-payouts/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	tournamentHandler *handlers.TournamentHandler,
	depositHandler *handlers.DepositHandler,
	participantHandler *handlers.ParticipantHandler,
	distributionHandler *handlers.DistributionHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	// Аутентификация
	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	// События платёжного шлюза: аутентификация по секрету в заголовке.
	router.Post("/webhooks/payments", depositHandler.WebhookHandler)

	router.Route("/tournaments", func(r chi.Router) {
		// Публичные маршруты для просмотра турниров
		r.Get("/", tournamentHandler.ListHandler)
		r.Get("/{tournamentID}", tournamentHandler.GetByIDHandler)
		r.Get("/{tournamentID}/participants", participantHandler.ListHandler)
		r.Get("/{tournamentID}/distributions", distributionHandler.ListHandler)

		// Защищённые маршруты только для организаторов
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize("organizer", "admin"))

			r.Post("/", tournamentHandler.CreateHandler)
			r.Patch("/{tournamentID}/status", tournamentHandler.UpdateStatusHandler)
			r.Post("/{tournamentID}/cancel", tournamentHandler.CancelHandler)
			r.Delete("/{tournamentID}", tournamentHandler.DeleteHandler)
			r.Post("/{tournamentID}/deposit", depositHandler.CreateHandler)
			r.Post("/{tournamentID}/distribute", distributionHandler.DistributeHandler)
		})

		// Регистрация участников
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/{tournamentID}/join", participantHandler.JoinHandler)
			r.Delete("/{tournamentID}/leave", participantHandler.LeaveHandler)
		})
	})

	router.Route("/users", func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/me", userHandler.MeHandler)
		r.Put("/me/payout-key", userHandler.UpdatePayoutKeyHandler)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Authorize("admin"))

		r.Post("/users/{userID}/credits", userHandler.CreditBalanceHandler)
	})

	// WebSocket-подписка на события турнира
	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)
}
