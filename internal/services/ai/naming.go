package ai

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/nyp-fyp/chatbot-go/internal/models"
)

const chatNameMaxLen = 40

// GenerateChatName produces a short display name for a chat from its first
// message. The naming model gets one quick attempt; on any failure the name
// falls back to a cleaned, truncated prefix of the message so chat creation
// never blocks on the LLM.
func (s *Client) GenerateChatName(ctx context.Context, firstMessage string) string {
	fallback := FallbackChatName(firstMessage)

	modelID := s.config.NamingModel
	if modelID == "" {
		modelID = s.config.Default
	}
	if modelID == "" {
		return fallback
	}

	namingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	prompt := []models.Message{
		{Role: "system", Content: "Reply with a title of at most five words for the conversation that starts with the following message. Reply with the title only."},
		{Role: "user", Content: firstMessage},
	}

	name, err := s.doRequest(namingCtx, prompt, modelID, 1)
	if err != nil {
		s.logger.WithError(err).Debug("Chat naming fell back to message prefix")
		return fallback
	}

	name = strings.Trim(strings.TrimSpace(name), `"'`)
	if name == "" {
		return fallback
	}
	return truncateName(name)
}

// FallbackChatName derives a name from the message text alone
func FallbackChatName(message string) string {
	cleaned := strings.Join(strings.Fields(message), " ")
	if cleaned == "" {
		return "New Chat"
	}
	return truncateName(cleaned)
}

// truncateName caps a chat name at chatNameMaxLen runes, not bytes, so
// names drawn from multi-byte text never end mid-character.
func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= chatNameMaxLen {
		return name
	}
	return strings.TrimSpace(string(runes[:chatNameMaxLen]))
}

// ClassifyQuery buckets a user query into a coarse category used for
// routing and logging. Keyword-based; the heavy lifting stays with the LLM.
func (s *Client) ClassifyQuery(query string) string {
	lower := strings.ToLower(query)

	switch {
	case containsAny(lower, "admission", "apply", "enrol", "intake", "application"):
		return "admissions"
	case containsAny(lower, "course", "module", "diploma", "curriculum", "subject"):
		return "courses"
	case containsAny(lower, "fee", "scholarship", "bursary", "financial", "tuition"):
		return "finance"
	case containsAny(lower, "cca", "club", "hostel", "campus", "facility", "facilities"):
		return "campus_life"
	case isSmallTalk(lower):
		return "small_talk"
	default:
		return "general"
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func isSmallTalk(s string) bool {
	trimmed := strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	switch trimmed {
	case "hi", "hello", "hey", "thanks", "thank you", "bye", "good morning", "good afternoon":
		return true
	}
	return false
}
