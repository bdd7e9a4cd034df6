package notify

import (
	"strings"

	"github.com/valdigley/studio-booking/internal/model"
)

// Message templates use {{name}} placeholder substitution.
var templates = map[model.NotificationTemplate]string{
	model.TemplateManualPixInstructions: "Olá {{name}}! Sua sessão {{session_type}} está reservada para {{date}}. " +
		"Para confirmar, faça o PIX de R$ {{amount}} para a chave: {{pix_key}}.",
	model.TemplatePaymentConfirmed: "Olá {{name}}! Pagamento de R$ {{amount}} confirmado. " +
		"Sua sessão {{session_type}} em {{date}} está garantida.",
	model.TemplateSelectionReceived: "Olá {{name}}! Recebemos sua seleção de {{count}} fotos. " +
		"Em breve você recebe o material finalizado.",
	model.TemplateSelectionExtras: "Olá {{name}}! Você selecionou {{extra_count}} fotos extras. " +
		"Finalize o PIX de R$ {{extra_amount}} para concluir a seleção.",
}

// Render substitutes {{key}} placeholders with their values. Unknown
// placeholders are left as-is.
func Render(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

// TemplateBody returns the raw template text for a type.
func TemplateBody(t model.NotificationTemplate) (string, bool) {
	body, ok := templates[t]
	return body, ok
}
