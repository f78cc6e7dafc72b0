// Package usecase hosts the conversation orchestrator: the single entry
// point that ties together history management, backend selection, the tag
// protocol and draft accumulation.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"landsale-agent/internal/domain"
	"landsale-agent/internal/draft"
	"landsale-agent/internal/integrations/openrouter"
	"landsale-agent/internal/protocol"
)

const (
	defaultHistoryWindow  = 10
	defaultMaxMessageLen  = 2000
	defaultPrimaryTimeout = 20 * time.Second
	defaultVisionTimeout  = 15 * time.Second
)

// listingTriggers flip the conversation into listing mode. The flag is
// monotonic: once set it never reverts for the conversation's lifetime.
var listingTriggers = []string{"sell", "list my", "post my"}

// ParamGetter resolves configuration parameters.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// LLMClient is the primary inference backend.
type LLMClient interface {
	Chat(ctx context.Context, model openrouter.Model, messages []domain.ChatMessage) (string, error)
	ChatStream(ctx context.Context, model openrouter.Model, messages []domain.ChatMessage, onChunk func(string) error) error
	AnalyzeImage(ctx context.Context, imageData, mimeType, prompt string) (string, error)
}

// FallbackClient is the deterministic local backend used when the primary
// fails.
type FallbackClient interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
	ChatStream(ctx context.Context, messages []domain.ChatMessage, onChunk func(string) error) error
}

// StateStore persists conversation turns and per-conversation metadata.
type StateStore interface {
	GetMeta(ctx context.Context, conversationID string) (domain.ConversationMeta, bool, error)
	SaveMeta(ctx context.Context, meta domain.ConversationMeta) error
	AppendTurn(ctx context.Context, conversationID, role, content string) error
	GetHistory(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error)
	ResetConversation(ctx context.Context, conversationID string) error
}

// ListingStore is the publish collaborator.
type ListingStore interface {
	CreateListing(ctx context.Context, listing domain.Listing) (domain.Listing, error)
}

// Config carries the orchestrator's tunables. Zero values select defaults.
type Config struct {
	ParamPrefix    string
	HistoryWindow  int
	MaxMessageLen  int
	PrimaryTimeout time.Duration
	VisionTimeout  time.Duration
}

type ChatService struct {
	params   ParamGetter
	llm      LLMClient
	fallback FallbackClient
	state    StateStore
	listings ListingStore

	paramPrefix    string
	historyWindow  int
	maxMessageLen  int
	primaryTimeout time.Duration
	visionTimeout  time.Duration

	cacheMu     sync.RWMutex
	cacheLoaded bool
	model       openrouter.Model
}

type ChatInput struct {
	ConversationID string
	Text           string
	Model          string
	Attachment     *domain.Attachment
}

type ChatOutput struct {
	ConversationID string
	Text           string
	CleanText      string
	Suggestions    []string
	Properties     []domain.PropertyCard
	ListingPreview *domain.ListingPreview
	PropertyData   *domain.PropertyDraft
	Draft          domain.PropertyDraft
	ListingMode    bool
	ReadyToPublish bool
	UsedFallback   bool
}

type PublishInput struct {
	ConversationID string
	UserID         string
	ImageURLs      []string
}

type PublishOutput struct {
	ListingID string
	Slug      string
	URL       string
}

func NewChatService(params ParamGetter, llm LLMClient, fb FallbackClient, state StateStore, listings ListingStore, cfg Config) (*ChatService, error) {
	if params == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if fb == nil {
		return nil, errors.New("usecase: fallback client must not be nil")
	}
	if state == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if listings == nil {
		return nil, errors.New("usecase: listing store must not be nil")
	}
	prefix := strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	if prefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	s := &ChatService{
		params:         params,
		llm:            llm,
		fallback:       fb,
		state:          state,
		listings:       listings,
		paramPrefix:    prefix,
		historyWindow:  cfg.HistoryWindow,
		maxMessageLen:  cfg.MaxMessageLen,
		primaryTimeout: cfg.PrimaryTimeout,
		visionTimeout:  cfg.VisionTimeout,
	}
	if s.historyWindow <= 0 {
		s.historyWindow = defaultHistoryWindow
	}
	if s.maxMessageLen <= 0 {
		s.maxMessageLen = defaultMaxMessageLen
	}
	if s.primaryTimeout <= 0 {
		s.primaryTimeout = defaultPrimaryTimeout
	}
	if s.visionTimeout <= 0 {
		s.visionTimeout = defaultVisionTimeout
	}
	return s, nil
}

// turnContext carries the per-turn state between the prepare and finish
// halves of a conversation turn.
type turnContext struct {
	conversationID string
	model          openrouter.Model
	meta           domain.ConversationMeta
	acc            *draft.Accumulator
	outbound       []domain.ChatMessage
}

// SendMessage runs one conversation turn. A primary backend failure falls
// back to the deterministic backend silently; only state-store failures
// surface as errors.
func (s *ChatService) SendMessage(ctx context.Context, in ChatInput) (ChatOutput, error) {
	tc, err := s.prepareTurn(ctx, in)
	if err != nil {
		return ChatOutput{}, err
	}

	usedFallback := false
	cctx, cancel := context.WithTimeout(ctx, s.primaryTimeout)
	raw, chatErr := s.llm.Chat(cctx, tc.model, tc.outbound)
	cancel()
	if chatErr != nil {
		slog.Warn("primary completion failed, falling back", "model", tc.model, "err", chatErr)
		usedFallback = true
		raw, chatErr = s.fallback.Chat(ctx, tc.outbound)
	}
	if chatErr != nil {
		// Both backends down. Never surface a raw failure on this path.
		slog.Error("fallback backend failed", "err", chatErr)
		return s.apologyOutput(ctx, tc), nil
	}

	return s.finishTurn(ctx, tc, raw, usedFallback)
}

// SendMessageStream is the streaming variant: chunks are forwarded in
// arrival order, and the assembled response goes through the same
// post-processing as SendMessage.
func (s *ChatService) SendMessageStream(ctx context.Context, in ChatInput, onChunk func(string) error) (ChatOutput, error) {
	tc, err := s.prepareTurn(ctx, in)
	if err != nil {
		return ChatOutput{}, err
	}

	var b strings.Builder
	collect := func(chunk string) error {
		b.WriteString(chunk)
		return onChunk(chunk)
	}

	usedFallback := false
	cctx, cancel := context.WithTimeout(ctx, s.primaryTimeout)
	streamErr := s.llm.ChatStream(cctx, tc.model, tc.outbound, collect)
	cancel()
	if streamErr != nil {
		slog.Warn("primary stream failed, falling back", "model", tc.model, "err", streamErr)
		usedFallback = true
		b.Reset()
		streamErr = s.fallback.ChatStream(ctx, tc.outbound, collect)
	}
	if streamErr != nil {
		slog.Error("fallback stream failed", "err", streamErr)
		out := s.apologyOutput(ctx, tc)
		_ = onChunk(out.Text)
		return out, nil
	}

	return s.finishTurn(ctx, tc, b.String(), usedFallback)
}

// Reset discards the conversation's history and draft. The selected model
// is preserved by the state store.
func (s *ChatService) Reset(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return newError(ErrorInvalidInput, "empty_conversation_id", nil)
	}
	if err := s.state.ResetConversation(ctx, conversationID); err != nil {
		return newError(ErrorInternal, "state_reset_error", err)
	}
	return nil
}

// Publish persists the conversation's draft as a listing. It fails with
// ErrorNotReady until the minimum publishable fields are populated.
func (s *ChatService) Publish(ctx context.Context, in PublishInput) (PublishOutput, error) {
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		return PublishOutput{}, newError(ErrorInvalidInput, "empty_conversation_id", nil)
	}
	if strings.TrimSpace(in.UserID) == "" {
		return PublishOutput{}, newError(ErrorInvalidInput, "empty_user_id", nil)
	}

	meta, found, err := s.state.GetMeta(ctx, conversationID)
	if err != nil {
		return PublishOutput{}, newError(ErrorInternal, "state_read_error", err)
	}
	if !found {
		return PublishOutput{}, newError(ErrorInvalidInput, "unknown_conversation", nil)
	}

	acc := accumulatorFrom(meta.DraftJSON)
	if len(in.ImageURLs) > 0 {
		acc.Update(domain.PropertyDraft{Images: in.ImageURLs})
	}
	if !acc.ReadyToPublish() {
		return PublishOutput{}, newError(ErrorNotReady, "listing_incomplete", nil)
	}

	d := acc.Draft()
	title, description := acc.Render()
	created, err := s.listings.CreateListing(ctx, domain.Listing{
		UserID:          in.UserID,
		Title:           title,
		Description:     description,
		ListingType:     "sale",
		Status:          domain.ListingStatusPending,
		Price:           d.Price,
		District:        d.District,
		City:            d.City,
		Address:         d.Location,
		Size:            d.LandSize,
		SizeUnit:        d.LandUnit,
		Bedrooms:        d.Bedrooms,
		Bathrooms:       d.Bathrooms,
		Features:        d.Features,
		Images:          d.Images,
		ContactPhone:    d.ContactPhone,
		ContactWhatsapp: d.ContactWhatsapp,
	})
	if err != nil {
		return PublishOutput{}, newError(ErrorInternal, "listing_write_error", err)
	}

	meta.DraftJSON = marshalDraft(d)
	if err := s.state.SaveMeta(ctx, meta); err != nil {
		return PublishOutput{}, newError(ErrorInternal, "state_write_error", err)
	}

	return PublishOutput{
		ListingID: created.ID,
		Slug:      created.Slug,
		URL:       "/properties/" + created.Slug,
	}, nil
}

// ListingSummary renders the conversation's draft into the deterministic
// title+description fallback.
func (s *ChatService) ListingSummary(ctx context.Context, conversationID string) (string, error) {
	meta, found, err := s.state.GetMeta(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return "", newError(ErrorInternal, "state_read_error", err)
	}
	if !found {
		return "", newError(ErrorInvalidInput, "unknown_conversation", nil)
	}
	return accumulatorFrom(meta.DraftJSON).Summary(), nil
}

func (s *ChatService) prepareTurn(ctx context.Context, in ChatInput) (*turnContext, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(text) > s.maxMessageLen {
		return nil, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	if err := s.ensureConfig(ctx); err != nil {
		return nil, newError(ErrorInternal, "ssm_load_error", err)
	}

	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		conversationID = newUUID()
	}

	meta, found, err := s.state.GetMeta(ctx, conversationID)
	if err != nil {
		return nil, newError(ErrorInternal, "state_read_error", err)
	}
	if !found {
		meta = domain.ConversationMeta{ConversationID: conversationID}
	}

	model, err := s.resolveModel(in.Model, meta.Model)
	if err != nil {
		return nil, newError(ErrorInvalidInput, "unsupported_model", err)
	}
	meta.Model = string(model)

	if hasListingTrigger(text) {
		meta.ListingMode = true
	}

	acc := accumulatorFrom(meta.DraftJSON)
	if meta.ListingMode {
		if extracted := draft.Extract(text); !extracted.IsEmpty() {
			acc.Update(extracted)
		}
	}

	history, err := s.state.GetHistory(ctx, conversationID, s.historyWindow)
	if err != nil {
		return nil, newError(ErrorInternal, "state_read_error", err)
	}
	if len(history) == 0 {
		if err := s.state.AppendTurn(ctx, conversationID, domain.RoleAssistant, greetingMessage); err != nil {
			return nil, newError(ErrorInternal, "state_write_error", err)
		}
		history = append(history, domain.Turn{Role: domain.RoleAssistant, Content: greetingMessage})
	}

	userContent := text
	if in.Attachment != nil && in.Attachment.IsImage() {
		vctx, cancel := context.WithTimeout(ctx, s.visionTimeout)
		analysis, visionErr := s.llm.AnalyzeImage(vctx, in.Attachment.Data, in.Attachment.MimeType, imageAnalysisPrompt)
		cancel()
		if visionErr != nil {
			slog.Warn("image analysis failed, continuing without image context", "err", visionErr)
		} else if analysis != "" {
			userContent += "\n\n[Image Analysis: " + analysis + "]"
		}
	}

	if err := s.state.AppendTurn(ctx, conversationID, domain.RoleUser, userContent); err != nil {
		return nil, newError(ErrorInternal, "state_write_error", err)
	}
	history = append(history, domain.Turn{Role: domain.RoleUser, Content: userContent})

	return &turnContext{
		conversationID: conversationID,
		model:          model,
		meta:           meta,
		acc:            acc,
		outbound:       buildOutboundMessages(history, s.historyWindow),
	}, nil
}

func (s *ChatService) finishTurn(ctx context.Context, tc *turnContext, raw string, usedFallback bool) (ChatOutput, error) {
	if err := s.state.AppendTurn(ctx, tc.conversationID, domain.RoleAssistant, raw); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "state_write_error", err)
	}

	parsed := protocol.Parse(raw)
	if parsed.PropertyData != nil && tc.meta.ListingMode {
		tc.acc.Update(*parsed.PropertyData)
	}

	d := tc.acc.Draft()
	tc.meta.DraftJSON = marshalDraft(d)
	tc.meta.Turns++
	if err := s.state.SaveMeta(ctx, tc.meta); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "state_write_error", err)
	}

	return ChatOutput{
		ConversationID: tc.conversationID,
		Text:           raw,
		CleanText:      parsed.CleanText,
		Suggestions:    parsed.Suggestions,
		Properties:     parsed.Properties,
		ListingPreview: parsed.ListingPreview,
		PropertyData:   parsed.PropertyData,
		Draft:          d,
		ListingMode:    tc.meta.ListingMode,
		ReadyToPublish: tc.acc.ReadyToPublish(),
		UsedFallback:   usedFallback,
	}, nil
}

// apologyOutput is the terminal response when every backend failed. Turn
// state is persisted best-effort so the conversation stays coherent.
func (s *ChatService) apologyOutput(ctx context.Context, tc *turnContext) ChatOutput {
	if err := s.state.AppendTurn(ctx, tc.conversationID, domain.RoleAssistant, apologyMessage); err != nil {
		slog.Warn("failed to persist apology turn", "err", err)
	}
	tc.meta.Turns++
	if err := s.state.SaveMeta(ctx, tc.meta); err != nil {
		slog.Warn("failed to persist conversation meta", "err", err)
	}
	return ChatOutput{
		ConversationID: tc.conversationID,
		Text:           apologyMessage,
		CleanText:      apologyMessage,
		Suggestions:    append([]string(nil), apologySuggestions...),
		Draft:          tc.acc.Draft(),
		ListingMode:    tc.meta.ListingMode,
		ReadyToPublish: tc.acc.ReadyToPublish(),
		UsedFallback:   true,
	}
}

// resolveModel validates the per-request override, then the persisted
// selection, then the configured default.
func (s *ChatService) resolveModel(override, persisted string) (openrouter.Model, error) {
	if strings.TrimSpace(override) != "" {
		return openrouter.ParseModel(strings.TrimSpace(override))
	}
	if persisted != "" {
		model, err := openrouter.ParseModel(persisted)
		if err == nil {
			return model, nil
		}
		slog.Warn("persisted model no longer supported, using configured default", "model", persisted)
	}
	return s.model, nil
}

func (s *ChatService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	raw, err := s.params.GetParameter(ctx, s.paramPrefix+"/config/model")
	if err != nil {
		return err
	}
	model, err := openrouter.ParseModel(strings.TrimSpace(raw))
	if err != nil {
		return err
	}

	s.model = model
	s.cacheLoaded = true
	return nil
}

func hasListingTrigger(text string) bool {
	lower := strings.ToLower(text)
	for _, trigger := range listingTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

func accumulatorFrom(draftJSON string) *draft.Accumulator {
	if strings.TrimSpace(draftJSON) == "" {
		return draft.NewAccumulator()
	}
	var d domain.PropertyDraft
	if err := json.Unmarshal([]byte(draftJSON), &d); err != nil {
		slog.Warn("discarding unreadable persisted draft", "err", err)
		return draft.NewAccumulator()
	}
	return draft.NewAccumulatorFrom(d)
}

func marshalDraft(d domain.PropertyDraft) string {
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

var newUUID = func() string {
	return uuid.NewString()
}
