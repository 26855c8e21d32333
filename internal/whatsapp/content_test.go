package whatsapp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		body    string
		kind    string
	}{
		{"text", Text{Body: "oi"}, "oi", KindText},
		{"extended text", ExtendedText{Body: "veja https://x"}, "veja https://x", KindText},
		{"image with caption", Image{Caption: "exame"}, "exame", KindImage},
		{"image without caption", Image{}, "[image]", KindImage},
		{"audio", Audio{}, "[audio]", KindAudio},
		{"document", Document{FileName: "laudo.pdf"}, "[document: laudo.pdf]", KindDocument},
		{"sticker", Unknown{Kind: "sticker"}, "[sticker]", "sticker"},
		{"nil", nil, "[unknown]", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, kind := ExtractBody(tt.content)
			assert.Equal(t, tt.body, body)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestDisplayNameFallsBackToNumber(t *testing.T) {
	assert.Equal(t, "Maria", DisplayName(" Maria ", "5511988887777@s.whatsapp.net"))
	assert.Equal(t, "5511988887777", DisplayName("", "5511988887777@s.whatsapp.net"))
	assert.Equal(t, "5511988887777", DisplayName("", "5511988887777:12@s.whatsapp.net"))
}

func TestIsDirectChat(t *testing.T) {
	assert.True(t, IsDirectChat("5511988887777@s.whatsapp.net"))
	assert.False(t, IsDirectChat("120363025246125486@g.us"))
	assert.False(t, IsDirectChat("status@broadcast"))
	assert.False(t, IsDirectChat("1234@broadcast"))
	assert.False(t, IsDirectChat("120363@newsletter"))
	assert.False(t, IsDirectChat(""))
}

func TestNormalizeConversationID(t *testing.T) {
	assert.Equal(t, "5511988887777@s.whatsapp.net", NormalizeConversationID("+55 (11) 98888-7777"))
	assert.Equal(t, "120363@g.us", NormalizeConversationID("120363@g.us"))
	assert.Equal(t, "", NormalizeConversationID("  "))
}

func TestRenderQR(t *testing.T) {
	url, err := RenderQR("2@abcdef,ghijkl,mnopqr")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
}
