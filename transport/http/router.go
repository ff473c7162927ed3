package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/fhevm/ports"
	"github.com/layer-3/fhevm/service"
)

// RouterOptions configures SetupRouter
type RouterOptions struct {
	// Tokenizer enables bearer authentication of every route when set
	Tokenizer ports.Tokenizer
	Audience  string

	// DialWallet opens the wallet named in a connect request. Without it
	// only the default wallet of the client can be connected.
	DialWallet WalletDialer

	Logger *zap.Logger
}

// SetupRouter sets up the Gin router
func SetupRouter(client *service.Client, opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewHandlers(client, opts.DialWallet, logger)

	api := router.Group("/")
	if opts.Tokenizer != nil {
		api.Use(AuthMiddleware(opts.Tokenizer, opts.Audience))
	}

	// Session routes
	session := api.Group("/session")
	{
		session.GET("", handlers.Session)
		session.GET("/events", handlers.Events)
		session.POST("/initialize", handlers.Initialize)
		session.POST("/reinitialize", handlers.Reinitialize)
		session.POST("/reset", handlers.Reset)
	}

	// Operation routes need a ready session
	ops := api.Group("/")
	ops.Use(RequireReady(client))
	{
		ops.POST("/wallet/connect", handlers.ConnectWallet)
		ops.POST("/wallet/disconnect", handlers.DisconnectWallet)
		ops.POST("/encrypt", handlers.Encrypt)
		ops.POST("/decrypt", handlers.RequestDecryption)
		ops.GET("/decrypt/:id", handlers.WaitForDecryption)
		ops.POST("/contract/read", handlers.ReadContract)
		ops.POST("/contract/write", handlers.WriteContract)
	}

	return router
}
