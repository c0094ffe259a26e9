package session

import (
	"sort"
	"strings"

	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/pmezard/go-difflib/difflib"
)

// fuzzyThreshold is the single acceptance threshold for the edit-similarity
// ratio. The product historically used different thresholds per call site;
// one consistent value is used everywhere here.
const fuzzyThreshold = 0.45

const snippetMaxLen = 120

// Search scores every message the owner has against the query and returns
// matching chats sorted by descending score. A case-insensitive substring
// hit is an automatic match; otherwise the difflib sequence ratio decides.
// An empty query or an owner with no chats yields an empty result, not an
// error.
func (s *Service) Search(owner, query string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchResult{}, nil
	}

	st := s.ownerState(owner)
	if err := s.ensureLoaded(owner, st); err != nil {
		return nil, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	results := make([]models.SearchResult, 0)
	for _, sess := range st.chats {
		score, snippet := scoreSession(sess, query)
		if score <= 0 {
			continue
		}
		results = append(results, models.SearchResult{
			ChatID:      sess.ChatID,
			DisplayName: sess.DisplayName,
			Snippet:     snippet,
			Score:       score,
		})
	}

	// Ties broken by recency, then id, so results are deterministic for a
	// fixed history.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		a, b := st.chats[results[i].ChatID], st.chats[results[j].ChatID]
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.After(b.ModTime)
		}
		return results[i].ChatID < results[j].ChatID
	})

	return results, nil
}

// scoreSession returns the best message score in the session and the text
// of the message that produced it.
func scoreSession(sess *models.ChatSession, query string) (float64, string) {
	best := 0.0
	snippet := ""

	// The chat id itself participates, so searching by name works too
	if s := scoreText(sess.ChatID, query); s > best {
		best = s
		snippet = sess.DisplayName
	}

	for _, msg := range sess.Messages {
		if s := scoreText(msg.Content, query); s > best {
			best = s
			snippet = truncate(msg.Content, snippetMaxLen)
		}
	}
	return best, snippet
}

// scoreText combines substring containment with a normalized edit-similarity
// ratio over characters. The ratio is taken against the whole text and
// against each word, so a near-miss on one word still matches.
func scoreText(text, query string) float64 {
	if text == "" {
		return 0
	}

	lowerText := strings.ToLower(text)
	lowerQuery := strings.ToLower(query)

	if strings.Contains(lowerText, lowerQuery) {
		return 1.0
	}

	best := ratio(lowerQuery, lowerText)
	for _, word := range strings.Fields(lowerText) {
		if r := ratio(lowerQuery, word); r > best {
			best = r
		}
	}
	if best >= fuzzyThreshold {
		return best
	}
	return 0
}

// ratio is the difflib sequence ratio over individual characters
func ratio(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// truncate cuts on a rune boundary so multi-byte text stays valid UTF-8
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
