package main

import (
	"context"

	"chatstatus-backend/cache"
	"chatstatus-backend/config"
	"chatstatus-backend/handlers"
	"chatstatus-backend/middleware"
	"chatstatus-backend/services"
	"chatstatus-backend/store"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

func main() {
	// Load configuration
	config.Load()

	// Connect to Redis (optional, won't crash if unavailable)
	cache.Connect()

	ctx := context.Background()
	st, authClient, msgClient := connectBackend(ctx)
	defer st.Close()

	engine := services.NewMembership(st, services.NewNotification(st, msgClient))
	watcher := services.NewWatcher(st)
	handlers.Init(st, engine, watcher)

	// Setup router
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": config.AppConfig.AppName,
		})
	})

	// ==========================================
	// AUTH ROUTES (local fallback only)
	// ==========================================
	if authClient == nil {
		auth := r.Group("/auth")
		{
			auth.POST("/register", handlers.Register)
			auth.POST("/login", handlers.Login)
		}
	}

	// ==========================================
	// API ROUTES (authenticated)
	// ==========================================
	api := r.Group("/api")
	api.Use(middleware.AuthRequired(authClient, st))
	{
		// User
		api.GET("/users/me", handlers.GetProfile)
		api.PUT("/users/me", handlers.UpdateProfile)
		api.PUT("/users/me/fcm-token", handlers.UpdateFCMToken)
		api.POST("/users/search", handlers.SearchUsers)
		api.GET("/contacts", handlers.RecentContacts)

		// Groups
		api.POST("/groups", handlers.CreateGroup)
		api.GET("/groups", handlers.GetGroups)
		api.GET("/groups/public", handlers.DiscoverGroups)
		api.POST("/groups/join", handlers.JoinByCode)
		api.GET("/groups/:id", handlers.GetGroup)
		api.PUT("/groups/:id", handlers.UpdateGroup)
		api.PUT("/groups/:id/visibility", handlers.SetVisibility)
		api.DELETE("/groups/:id", handlers.DeleteGroup)
		api.POST("/groups/:id/join", handlers.JoinGroup)
		api.GET("/groups/:id/requests", handlers.ListJoinRequests)
		api.POST("/groups/:id/requests/:uid/approve", handlers.ApproveJoinRequest)
		api.POST("/groups/:id/requests/:uid/reject", handlers.RejectJoinRequest)
		api.POST("/groups/:id/members", handlers.AddMember)
		api.DELETE("/groups/:id/members/:uid", handlers.RemoveMember)
		api.PUT("/groups/:id/members/:uid/admin", handlers.ToggleAdmin)
		api.POST("/groups/:id/leave", handlers.LeaveGroup)
		api.GET("/groups/:id/watch", handlers.WatchGroup)

		// Chats & messages
		api.GET("/chats", handlers.ListChats)
		api.POST("/chats/direct", handlers.CreateDirectChat)
		api.GET("/chats/:id/messages", handlers.GetMessages)
		api.POST("/chats/:id/messages", handlers.SendMessage)
		api.POST("/chats/:id/read", handlers.MarkRead)
	}

	// Start server
	port := config.AppConfig.Port
	addr := "0.0.0.0:" + port
	logrus.Infof("🚀 %s listening on %s", config.AppConfig.AppName, addr)
	if err := r.Run(addr); err != nil {
		logrus.Fatal("Failed to start server: ", err)
	}
}

// connectBackend picks the document store: Firestore when Firebase is
// configured, the local gorm-backed store otherwise. Auth and push clients
// exist only in the Firestore case.
func connectBackend(ctx context.Context) (store.Store, *fbauth.Client, *messaging.Client) {
	if config.AppConfig.UseFirestore() {
		var opts []option.ClientOption
		if config.AppConfig.FirebaseCredPath != "" {
			opts = append(opts, option.WithCredentialsFile(config.AppConfig.FirebaseCredPath))
		}
		var fbConfig *firebase.Config
		if config.AppConfig.FirebaseProject != "" {
			fbConfig = &firebase.Config{ProjectID: config.AppConfig.FirebaseProject}
		}

		app, err := firebase.NewApp(ctx, fbConfig, opts...)
		if err != nil {
			logrus.Fatal("Failed to initialize Firebase: ", err)
		}
		fs, err := app.Firestore(ctx)
		if err != nil {
			logrus.Fatal("Failed to connect to Firestore: ", err)
		}
		authClient, err := app.Auth(ctx)
		if err != nil {
			logrus.Fatal("Failed to initialize Firebase Auth: ", err)
		}
		msgClient, err := app.Messaging(ctx)
		if err != nil {
			logrus.Warn("⚠️  FCM unavailable, running without push: ", err)
			msgClient = nil
		}

		logrus.Info("✅ Firestore connected successfully")
		return store.NewFirestore(fs), authClient, msgClient
	}

	local, err := store.OpenLocal(config.AppConfig.DatabaseURL)
	if err != nil {
		logrus.Fatal("Failed to open local store: ", err)
	}
	logrus.Info("✅ Local document store ready (no Firebase credentials configured)")
	return local, nil, nil
}
