package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valdigley/studio-booking/internal/model"
)

func TestRender(t *testing.T) {
	body, ok := TemplateBody(model.TemplateManualPixInstructions)
	require.True(t, ok)

	out := Render(body, map[string]string{
		"name":         "Maria",
		"session_type": "gestante",
		"date":         "06/01/2025 10:00",
		"amount":       "750.00",
		"pix_key":      "estudio@pix.example",
	})

	assert.Contains(t, out, "Olá Maria!")
	assert.Contains(t, out, "sessão gestante")
	assert.Contains(t, out, "R$ 750.00")
	assert.Contains(t, out, "chave: estudio@pix.example")
	assert.NotContains(t, out, "{{")
}

func TestRender_UnknownPlaceholderLeftAsIs(t *testing.T) {
	out := Render("Olá {{name}}, código {{code}}", map[string]string{"name": "Ana"})
	assert.Equal(t, "Olá Ana, código {{code}}", out)
}

func TestTemplateBody_AllTemplatesExist(t *testing.T) {
	for _, tt := range []model.NotificationTemplate{
		model.TemplateManualPixInstructions,
		model.TemplatePaymentConfirmed,
		model.TemplateSelectionReceived,
		model.TemplateSelectionExtras,
	} {
		_, ok := TemplateBody(tt)
		assert.True(t, ok, "missing template %s", tt)
	}

	_, ok := TemplateBody("nonexistent")
	assert.False(t, ok)
}
