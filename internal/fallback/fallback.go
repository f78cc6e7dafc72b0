// Package fallback is the deterministic local backend used whenever the
// OpenRouter call fails. It keyword-matches the last user message against a
// small fixed table and always returns a response, so a conversation turn
// can never surface a raw upstream failure.
package fallback

import (
	"context"
	"encoding/json"
	"strings"

	"landsale-agent/internal/domain"
)

type cannedResponse struct {
	text        string
	suggestions []string
}

// Table order matters: the first keyword contained in the message wins.
var cannedResponses = []struct {
	keyword string
	resp    cannedResponse
}{
	{"hello", cannedResponse{
		text:        "Hello! I'm Priya, your real estate assistant. How can I help you today? 🏡",
		suggestions: []string{"Find properties", "Sell property", "Market info"},
	}},
	{"buy", cannedResponse{
		text:        "I'd be happy to help you find properties! What type of property are you looking for? 🏠",
		suggestions: []string{"House for sale", "Apartment", "Land", "Commercial"},
	}},
	{"sell", cannedResponse{
		text:        "Great! I can help you sell your property. What's the type and location of your property? 💰",
		suggestions: []string{"House details", "Apartment info", "Get valuation", "Market analysis"},
	}},
	{"colombo", cannedResponse{
		text: "I found some great properties in Colombo! Here are a few options:\n\n🏠 **3-bedroom house in Colombo 7**\nPrice: Rs. 25 million\nFeatures: 3 bed, 2 bath, garden\n\n🏢 **2-bedroom apartment in Colombo 3**\nPrice: Rs. 18 million\nFeatures: 2 bed, 2 bath, pool access\n\nWould you like more details on any of these?",
		suggestions: []string{"More houses", "Apartments", "Different area", "Schedule viewing"},
	}},
	{"price", cannedResponse{
		text: "Property prices vary by location and type. Here's a general guide:\n\n📍 **Colombo**: Rs. 15-50M for houses\n📍 **Suburbs**: Rs. 8-25M for houses\n📍 **Apartments**: Rs. 8-30M\n📍 **Land**: Rs. 2-15M per perch\n\nFor specific pricing, I need more details about what you're looking for.",
		suggestions: []string{"Get quote", "Market trends", "Valuation", "Compare areas"},
	}},
	{"help", cannedResponse{
		text: "I'm here to help with all your real estate needs! I can:\n\n🔍 Find properties for sale/rent\n💰 Provide market valuations\n📊 Show market trends\n🏠 Help with buying/selling process\n📄 Review property documents\n\nWhat would you like to know about?",
		suggestions: []string{"Find properties", "Market info", "Buying guide", "Selling tips"},
	}},
}

var defaultResponse = cannedResponse{
	text:        "I'm here to help with your real estate needs! I can assist with finding properties, market analysis, and buying/selling guidance. What would you like to know? 🏡",
	suggestions: []string{"Find properties", "Market info", "Get valuation", "Buying guide"},
}

// Client is a pure-local chat backend the orchestrator swaps in when the
// primary completion call fails.
type Client struct{}

func New() *Client {
	return &Client{}
}

// Chat returns the canned response for the last user message. Suggestions
// are appended as a SUGGESTIONS tag so the reply flows through the same
// protocol parser as a real completion. The error is always nil.
func (c *Client) Chat(_ context.Context, messages []domain.ChatMessage) (string, error) {
	return render(match(lastUserText(messages))), nil
}

// ChatStream emits the canned response word by word.
func (c *Client) ChatStream(_ context.Context, messages []domain.ChatMessage, onChunk func(string) error) error {
	full := render(match(lastUserText(messages)))
	words := strings.Split(full, " ")
	for i, w := range words {
		chunk := w
		if i < len(words)-1 {
			chunk += " "
		}
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

func lastUserText(messages []domain.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}

func match(text string) cannedResponse {
	lower := strings.ToLower(text)
	for _, entry := range cannedResponses {
		if strings.Contains(lower, entry.keyword) {
			return entry.resp
		}
	}
	return defaultResponse
}

func render(r cannedResponse) string {
	if len(r.suggestions) == 0 {
		return r.text
	}
	encoded, err := json.Marshal(r.suggestions)
	if err != nil {
		return r.text
	}
	return r.text + "\n\n<SUGGESTIONS>" + string(encoded) + "</SUGGESTIONS>"
}
