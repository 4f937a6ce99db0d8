package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"replydeck/manager/internal/platform"
)

const (
	jobPostTemperature = 0.7
	jobPostMaxTokens   = 800

	customPostTemperature = 0.8
	customPostMaxTokens   = 600
)

// PostDraft is a generated post split into a title and a body.
type PostDraft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// splitTitleBody separates the generated text into a title line and the
// remaining body, stripping the literal "Título:" label and markdown bold
// markers and truncating the title to the platform limit.
func splitTitleBody(raw string) PostDraft {
	title, content, found := strings.Cut(raw, "\n")
	if !found {
		content = raw
	}

	title = strings.ReplaceAll(title, "Título:", "")
	title = strings.ReplaceAll(title, "**", "")
	title = strings.TrimSpace(title)
	if runes := []rune(title); len(runes) > platform.MaxTitleLength {
		title = string(runes[:platform.MaxTitleLength])
	}

	return PostDraft{
		Title:   title,
		Content: strings.TrimSpace(content),
	}
}

// GenerateJobPost drafts a job posting from a structured brief. On any
// backend failure it returns a templated fallback post built from the job
// title and company name alone.
func (g *Generator) GenerateJobPost(ctx context.Context, in JobPostInput) PostDraft {
	prompt := BuildJobPostPrompt(in)

	text, err := g.complete(ctx, prompt, jobPostTemperature, jobPostMaxTokens, postTimeout)
	if err != nil {
		log.Error().Err(err).Str("job_title", in.JobTitle).Msg("Falling back to templated job post")
		return FallbackJobPost(in.JobTitle, in.CompanyName)
	}
	return splitTitleBody(text)
}

// GenerateCustomPost drafts a free-form post about any topic.
func (g *Generator) GenerateCustomPost(ctx context.Context, topic, tone, length string) PostDraft {
	prompt := BuildCustomPostPrompt(topic, tone, length)

	text, err := g.complete(ctx, prompt, customPostTemperature, customPostMaxTokens, postTimeout)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Falling back to templated post")
		return FallbackJobPost("Post", "ACM")
	}
	return splitTitleBody(text)
}

// FallbackJobPost is the canned post used when generation fails.
func FallbackJobPost(jobTitle, companyName string) PostDraft {
	return PostDraft{
		Title: fmt.Sprintf("🔥 %s en %s - ¡Únete a nuestro equipo!", jobTitle, companyName),
		Content: fmt.Sprintf(`¡Estamos buscando un/a %s!

🏢 **Empresa:** %s

💼 **¿Qué harás?**
Serás parte de un equipo dinámico y contribuirás al crecimiento de la empresa.

✨ **¿Qué buscamos?**
Personas apasionadas, proactivas y con ganas de aprender.

📩 **¿Interesado/a?**
¡Contáctanos para más información!

#Empleo #Trabajo #Oportunidad
`, jobTitle, companyName),
	}
}
