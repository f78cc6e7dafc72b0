package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"landsale-agent/handler"
	"landsale-agent/internal/fallback"
	"landsale-agent/internal/integrations/openrouter"
	"landsale-agent/internal/integrations/paramstore"
	"landsale-agent/internal/repository"
	"landsale-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	listingsTable := mustEnv("LISTINGS_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	historyWindow := envInt("HISTORY_WINDOW", 10)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 2000)
	primaryTimeout := envInt("PRIMARY_TIMEOUT_SECONDS", 20)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
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

	// ---- Handler ----
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

	h, err := handler.NewHandler(chatService)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
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
