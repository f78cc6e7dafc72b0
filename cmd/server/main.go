// Local development server. The Lambda deployment in cmd/main.go is the
// primary entrypoint; this wraps the same chat service in a gin HTTP
// server with CORS for the web widget and an SSE streaming endpoint.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"landsale-agent/internal/domain"
	"landsale-agent/internal/fallback"
	"landsale-agent/internal/integrations/openrouter"
	"landsale-agent/internal/integrations/paramstore"
	"landsale-agent/internal/repository"
	"landsale-agent/internal/usecase"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	stateTable := mustEnv("STATE_TABLE")
	listingsTable := mustEnv("LISTINGS_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	listenAddr := envOr("LISTEN_ADDR", ":8080")
	allowedOrigin := envOr("ALLOWED_ORIGIN", "http://localhost:3000")
	historyWindow := envInt("HISTORY_WINDOW", 10)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 2000)
	primaryTimeout := envInt("PRIMARY_TIMEOUT_SECONDS", 20)

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	dynamoClient := awsdynamodb.NewFromConfig(cfg)
	conversations, err := repository.NewConversationStore(dynamoClient, stateTable)
	if err != nil {
		slog.Error("failed to create conversation store", "err", err)
		os.Exit(1)
	}
	listings, err := repository.NewListingStore(dynamoClient, listingsTable)
	if err != nil {
		slog.Error("failed to create listing store", "err", err)
		os.Exit(1)
	}
	llmClient, err := openrouter.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create OpenRouter client", "err", err)
		os.Exit(1)
	}

	chatService, err := usecase.NewChatService(ssmClient, llmClient, fallback.New(), conversations, listings, usecase.Config{
		ParamPrefix:    paramPrefix,
		HistoryWindow:  historyWindow,
		MaxMessageLen:  maxMessageLen,
		PrimaryTimeout: time.Duration(primaryTimeout) * time.Second,
	})
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{allowedOrigin}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "X-Correlation-Id"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "landsale-agent"})
	})

	api := &chatAPI{svc: chatService}
	router.POST("/chat", api.chat)
	router.POST("/chat/stream", api.chatStream)
	router.POST("/chat/reset", api.reset)
	router.POST("/chat/publish", api.publish)

	srv := &http.Server{Addr: listenAddr, Handler: router}
	go func() {
		slog.Info("starting server", "addr", listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "err", err)
	}
}

type chatAPI struct {
	svc *usecase.ChatService
}

type attachmentPayload struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type chatPayload struct {
	ConversationID string             `json:"conversationId"`
	Message        string             `json:"message"`
	Model          string             `json:"model,omitempty"`
	Attachment     *attachmentPayload `json:"attachment,omitempty"`
}

func (p chatPayload) toInput() usecase.ChatInput {
	in := usecase.ChatInput{
		ConversationID: p.ConversationID,
		Text:           p.Message,
		Model:          p.Model,
	}
	if p.Attachment != nil {
		in.Attachment = &domain.Attachment{MimeType: p.Attachment.MimeType, Data: p.Attachment.Data}
	}
	return in
}

func (a *chatAPI) chat(c *gin.Context) {
	var req chatPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := a.svc.SendMessage(c.Request.Context(), req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponseBody(out))
}

func (a *chatAPI) chatStream(c *gin.Context) {
	var req chatPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	out, err := a.svc.SendMessageStream(c.Request.Context(), req.toInput(), func(chunk string) error {
		c.SSEvent("chunk", chunk)
		flusher.Flush()
		return nil
	})
	if err != nil {
		c.SSEvent("error", gin.H{"error": "stream failed"})
		flusher.Flush()
		return
	}
	// Terminal event carries the parsed result for the widget.
	c.SSEvent("done", chatResponseBody(out))
	flusher.Flush()
}

func (a *chatAPI) reset(c *gin.Context) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := a.svc.Reset(c.Request.Context(), req.ConversationID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": req.ConversationID, "status": "reset"})
}

func (a *chatAPI) publish(c *gin.Context) {
	var req struct {
		ConversationID string   `json:"conversationId"`
		UserID         string   `json:"userId"`
		ImageURLs      []string `json:"imageUrls,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := a.svc.Publish(c.Request.Context(), usecase.PublishInput{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		ImageURLs:      req.ImageURLs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"listingId": out.ListingID, "slug": out.Slug, "url": out.URL})
}

func chatResponseBody(out usecase.ChatOutput) gin.H {
	return gin.H{
		"conversationId": out.ConversationID,
		"message":        out.Text,
		"cleanText":      out.CleanText,
		"suggestions":    out.Suggestions,
		"properties":     out.Properties,
		"listingPreview": out.ListingPreview,
		"propertyData":   out.PropertyData,
		"draft":          out.Draft,
		"listingMode":    out.ListingMode,
		"readyToPublish": out.ReadyToPublish,
		"usedFallback":   out.UsedFallback,
	}
}

func respondError(c *gin.Context, err error) {
	var ue *usecase.Error
	if errors.As(err, &ue) {
		switch ue.Code {
		case usecase.ErrorInvalidInput:
			c.JSON(http.StatusBadRequest, gin.H{"code": ue.Code, "error": ue.Reason})
			return
		case usecase.ErrorNotReady:
			c.JSON(http.StatusConflict, gin.H{"code": ue.Code, "error": ue.Reason})
			return
		}
	}
	slog.Error("request failed", "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"code": usecase.ErrorInternal, "error": "internal error"})
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
