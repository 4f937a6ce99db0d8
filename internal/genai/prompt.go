// Package genai builds prompts for and talks to a local Ollama-compatible
// text-generation backend.
package genai

import (
	"fmt"
	"strings"

	"replydeck/manager/internal/models"
)

// tonePrompt pairs the system role with per-tone reply instructions.
type tonePrompt struct {
	system       string
	instructions string
}

var tonePrompts = map[models.Tone]tonePrompt{
	models.ToneFormal: {
		system: "Eres un asistente profesional que responde comentarios de manera formal y educada.",
		instructions: `Genera una respuesta formal y profesional al siguiente comentario.
- Usa un tono respetuoso y educado
- Sé conciso pero completo
- Evita emojis y jerga
- Mantén un lenguaje profesional`,
	},
	models.ToneFriendly: {
		system: "Eres un asistente amigable que responde comentarios de manera cercana y cálida.",
		instructions: `Genera una respuesta amigable y cercana al siguiente comentario.
- Usa un tono conversacional y amigable
- Puedes usar emojis con moderación
- Sé empático y positivo
- Mantén la respuesta natural y humana`,
	},
	models.ToneInformative: {
		system: "Eres un asistente experto que proporciona información clara y precisa.",
		instructions: `Genera una respuesta informativa y útil al siguiente comentario.
- Proporciona información clara y precisa
- Usa ejemplos si es necesario
- Sé educativo pero accesible
- Estructura la información de manera ordenada`,
	},
}

// Prompt is the structured instruction payload handed to the backend.
type Prompt struct {
	System string
	User   string
}

// Full combines the system and user parts into the single free-text prompt
// the backend expects.
func (p Prompt) Full() string {
	return p.System + "\n\n" + p.User
}

// BuildPrompt constructs the reply prompt for a comment. Unknown tones
// fall back to friendly. context, when present, is interpolated as a
// labeled block before the comment text, and the user prompt always ends
// with an explicit length ceiling so the backend is steered toward a
// bounded reply.
func BuildPrompt(commentText string, tone models.Tone, context string) Prompt {
	tp, ok := tonePrompts[tone]
	if !ok {
		tp = tonePrompts[models.ToneFriendly]
	}

	var b strings.Builder
	b.WriteString(tp.instructions)
	b.WriteString("\n\n")
	if context != "" {
		fmt.Fprintf(&b, "CONTEXTO DEL POST: %s\n\n", context)
	}
	fmt.Fprintf(&b, "COMENTARIO A RESPONDER:\n%s\n\n", commentText)
	b.WriteString("RESPUESTA (máximo 500 caracteres):")

	return Prompt{System: tp.system, User: b.String()}
}

// AvailableTones lists the tones a caller may request.
func AvailableTones() []models.Tone {
	return []models.Tone{models.ToneFormal, models.ToneFriendly, models.ToneInformative}
}

// JobPostInput is the structured brief for a job-post generation request.
type JobPostInput struct {
	JobTitle     string
	CompanyName  string
	JobType      string
	Location     string
	SalaryRange  string
	Requirements []string
	Benefits     []string
}

// BuildJobPostPrompt composes a posting brief into a single free-text
// prompt with explicit formatting instructions (a "Título:" line, a blank
// line, then the body).
func BuildJobPostPrompt(in JobPostInput) string {
	var b strings.Builder

	b.WriteString("Eres un experto en reclutamiento y marketing de empleos. Genera un post atractivo para Reddit sobre la siguiente oferta de empleo.\n\n")
	b.WriteString("INFORMACIÓN DEL EMPLEO:\n")
	fmt.Fprintf(&b, "- Puesto: %s\n", in.JobTitle)
	fmt.Fprintf(&b, "- Empresa: %s\n", in.CompanyName)
	fmt.Fprintf(&b, "- Tipo: %s\n", in.JobType)
	fmt.Fprintf(&b, "- Ubicación: %s\n", in.Location)

	if in.SalaryRange != "" {
		fmt.Fprintf(&b, "- Salario: %s\n", in.SalaryRange)
	}

	if len(in.Requirements) > 0 {
		b.WriteString("\nREQUISITOS:\n")
		for _, req := range in.Requirements {
			fmt.Fprintf(&b, "- %s\n", req)
		}
	}

	if len(in.Benefits) > 0 {
		b.WriteString("\nBENEFICIOS:\n")
		for _, benefit := range in.Benefits {
			fmt.Fprintf(&b, "- %s\n", benefit)
		}
	}

	b.WriteString(`

INSTRUCCIONES:
1. Crea un título atractivo y profesional (máximo 300 caracteres)
2. Escribe un contenido estructurado y fácil de leer
3. Usa emojis apropiados para hacer el post más atractivo
4. Incluye una llamada a la acción al final
5. Mantén un tono profesional pero amigable
6. No uses formato Markdown para el título, solo texto plano

FORMATO DE RESPUESTA:
Título: [El título aquí]

[El contenido del post aquí]
`)

	return b.String()
}

// BuildCustomPostPrompt composes a free-form post request about any topic.
func BuildCustomPostPrompt(topic, tone, length string) string {
	return fmt.Sprintf(`Genera un post para Reddit sobre el siguiente tema: %s

Tono: %s
Longitud: %s

Crea un título atractivo y contenido interesante. Usa emojis apropiados.

FORMATO:
Título: [título aquí]

[contenido aquí]
`, topic, tone, length)
}
