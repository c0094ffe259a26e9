package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLocalizer(t *testing.T) *Localizer {
	t.Helper()

	dir := t.TempDir()
	en := `{"rate_limit_exceeded": "Too many requests. Please wait {{.Seconds}} seconds.", "chat_not_found": "That chat does not exist."}`
	zh := `{"chat_not_found": "该对话不存在。"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"), []byte(en), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zh.json"), []byte(zh), 0644))

	localizer, err := NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "en",
		Languages:       []string{"en", "zh"},
		Directory:       dir,
	})
	require.NoError(t, err)
	return localizer
}

func TestLocalizerGet(t *testing.T) {
	l := testLocalizer(t)

	assert.Equal(t, "That chat does not exist.", l.Get("en", MsgChatNotFound, nil))
	assert.Equal(t, "该对话不存在。", l.Get("zh", MsgChatNotFound, nil))
}

func TestLocalizerFallsBackToDefaultLanguage(t *testing.T) {
	l := testLocalizer(t)

	assert.Equal(t, "That chat does not exist.", l.Get("fr", MsgChatNotFound, nil))
}

func TestLocalizerTemplateData(t *testing.T) {
	l := testLocalizer(t)

	msg := l.Get("en", MsgRateLimitExceeded, map[string]interface{}{"Seconds": 30})
	assert.Equal(t, "Too many requests. Please wait 30 seconds.", msg)
}

func TestLocalizerUnknownMessageID(t *testing.T) {
	l := testLocalizer(t)

	assert.Equal(t, "no_such_message", l.Get("en", "no_such_message", nil))
}
