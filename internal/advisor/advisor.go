// Package advisor asks a language model for nutrition advice on a food diary.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"grandbridge/internal/model"
)

const systemPrompt = "You are a professional nutritionist providing personalized dietary advice based on food consumption data."

var (
	ErrDisabled = errors.New("advisor not configured")
	ErrEmpty    = errors.New("empty advice")
)

type Advisor interface {
	Advise(ctx context.Context, start, end time.Time, entries []model.FoodEntry) (string, error)
}

// Gemini implements Advisor on the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrDisabled
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &Gemini{client: client, model: modelName}, nil
}

func (g *Gemini) Advise(ctx context.Context, start, end time.Time, entries []model.FoodEntry) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(Prompt(start, end, entries)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			MaxOutputTokens:   500,
			Temperature:       genai.Ptr[float32](0.7),
			TopP:              genai.Ptr[float32](0.9),
		})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// Disabled is used when no API key is configured.
type Disabled struct{}

func (Disabled) Advise(context.Context, time.Time, time.Time, []model.FoodEntry) (string, error) {
	return "", ErrDisabled
}

// Prompt describes the diary period and the foods eaten.
func Prompt(start, end time.Time, entries []model.FoodEntry) string {
	days := int(model.Civil(end).Sub(model.Civil(start)).Hours()/24) + 1

	var b strings.Builder
	b.WriteString("Food Diary Analysis:\n\n")
	fmt.Fprintf(&b, "Duration: %d day(s) (from %s to %s)\n\n", days, start.Format("2006-01-02"), end.Format("2006-01-02"))
	b.WriteString("Foods consumed:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s %s of %s\n", formatAmount(e.Amount), e.Unit, e.FoodName)
	}
	b.WriteString(`
Please provide:
1. Nutritional analysis of these foods (estimated calories, macronutrients, key vitamins/minerals)
2. Assessment of dietary balance and any nutritional gaps
3. Specific dietary advice and recommendations for improvement
4. A suggested balanced daily menu that complements these foods
5. Any health considerations or warnings if applicable

Keep the response concise but informative (under 300 words).
`)
	return b.String()
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

// Fallback turns an advisor failure into the text stored on the record and the
// warning shown to the user.
func Fallback(err error) (advice, warning string) {
	var apiErr genai.APIError
	code := 0
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	}
	msg := strings.ToLower(err.Error())

	switch {
	case code == 429 || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted"):
		return "API rate limit reached. Please try again later.",
			"Rate limit reached, but food entries were saved."
	case code == 401 || code == 403 || strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "api_key") || strings.Contains(msg, "api key"):
		return "Authentication failed. Please check API key.",
			"API authentication failed, but food entries were saved."
	case errors.Is(err, ErrDisabled):
		return "Nutrition advice is not available right now.",
			"Could not generate advice, but food entries were saved."
	}
	text := err.Error()
	if r := []rune(text); len(r) > 100 {
		text = string(r[:100])
	}
	return "Unable to generate advice: " + text,
		"Could not generate advice, but food entries were saved."
}
