package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"insider-tracker/internal/api"
	"insider-tracker/internal/logger"
	"insider-tracker/internal/store"
	"insider-tracker/internal/trace"
	"insider-tracker/internal/types"
)

// Generator turns aggregated trade statistics into a narrative summary
// using an LLM. A response that cannot be parsed as structured JSON
// degrades to a fallback summary; it never fails the insight pass.
type Generator struct {
	client     *api.Client
	provider   string // "OPENAI" or "CLAUDE"
	model      string
	maxTokens  int
	summaryLen int
}

func NewGenerator(cfg *store.Config) *Generator {
	return &Generator{
		client:     api.NewClient(api.WithLogging(true)),
		provider:   strings.ToUpper(cfg.LLM.Provider),
		model:      cfg.LLM.Model,
		maxTokens:  cfg.LLM.MaxTokens,
		summaryLen: cfg.Insight.SummaryLength,
	}
}

// insightPayload is the structured response contract with the LLM.
type insightPayload struct {
	Headline     string               `json:"headline"`
	Summary      string               `json:"summary"`
	NotableBuys  []types.NotableTrade `json:"notable_buys"`
	NotableSells []types.NotableTrade `json:"notable_sells"`
	Sentiment    string               `json:"sentiment"`
}

// Generate produces an insight from the given statistics. The returned
// error covers transport failures only; malformed model output is
// handled by the fallback path.
func (g *Generator) Generate(ctx context.Context, stats types.TradeStats) (types.InsightSummary, error) {
	ctx, span := trace.StartSpan(ctx, "generate-insight")
	defer span.End()

	prompt := buildInsightPrompt(stats)

	var (
		text string
		err  error
	)
	switch g.provider {
	case "OPENAI":
		text, err = g.completeWithOpenAI(ctx, prompt)
	case "CLAUDE":
		text, err = g.completeWithClaude(ctx, prompt)
	default:
		return types.InsightSummary{}, fmt.Errorf("unsupported LLM provider: %s", g.provider)
	}
	if err != nil {
		return types.InsightSummary{}, err
	}

	return g.parseOrFallback(ctx, text), nil
}

// parseOrFallback validates the structured response. Parse failure yields
// a near-verbatim excerpt with neutral sentiment, not an error.
func (g *Generator) parseOrFallback(ctx context.Context, text string) types.InsightSummary {
	var payload insightPayload
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &payload); err != nil || payload.Headline == "" {
		logger.Warn(ctx, "Insight response not parseable as JSON, using fallback", "length", len(text))
		summary := text
		if len(summary) > g.summaryLen {
			summary = summary[:g.summaryLen]
		}
		return types.InsightSummary{
			Headline:  "Insider activity analysis available",
			Summary:   summary,
			Sentiment: "neutral",
		}
	}

	if payload.Sentiment != "bullish" && payload.Sentiment != "bearish" && payload.Sentiment != "neutral" {
		payload.Sentiment = "neutral"
	}

	return types.InsightSummary{
		Headline:     payload.Headline,
		Summary:      payload.Summary,
		NotableBuys:  payload.NotableBuys,
		NotableSells: payload.NotableSells,
		Sentiment:    payload.Sentiment,
	}
}

// stripCodeFences removes a markdown fence some models wrap JSON in.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

const insightSchema = `{
  "headline": "one impactful factual sentence",
  "summary": "2-3 sentences factual summary of key insider activity",
  "notable_buys": [{"ticker": "...", "company": "what the company does", "activity": "who bought, how much"}],
  "notable_sells": [{"ticker": "...", "company": "what the company does", "activity": "who sold, how much"}],
  "sentiment": "bullish|bearish|neutral"
}`

func buildInsightPrompt(stats types.TradeStats) string {
	ratio := "N/A"
	if stats.SellCount > 0 {
		ratio = fmt.Sprintf("%.2f", float64(stats.BuyCount)/float64(stats.SellCount))
	}

	prompt := fmt.Sprintf(`Analyze this weekly insider trading activity and provide key factual takeaways.

STATISTICS:
- Total buy transactions: %d worth $%.1fM
- Total sell transactions: %d worth $%.1fM
- Buy/Sell ratio: %s

TOP PURCHASES:
%s

TOP SALES:
%s

CLUSTER ACTIVITY (multiple insiders same stock):
%s

STRICT RULES:
- NEVER give investment advice, recommendations, or suggestions to buy/sell
- NEVER use words like "consider", "should", "opportunity", "recommend", "attractive", "promising"
- Only state FACTS about what insiders did
- Be neutral and educational
- For each notable ticker, include a brief description of what the company does

Provide a factual summary focusing on:
1. What insiders actually did (who, how much, when)
2. Cluster patterns (multiple insiders on same stock)
3. Overall market sentiment based purely on the data

Respond ONLY with valid JSON matching this schema:
%s`,
		stats.BuyCount, stats.BuyValue/1e6,
		stats.SellCount, stats.SellValue/1e6,
		ratio,
		formatTradeLines(stats.TopBuys),
		formatTradeLines(stats.TopSells),
		formatClusterLines(stats.Clusters),
		insightSchema)

	return prompt
}

func formatTradeLines(trades []types.TradeRecord) string {
	if len(trades) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(trades))
	for _, t := range trades {
		title := t.InsiderTitle
		if title == "" {
			title = "insider"
		}
		lines = append(lines, fmt.Sprintf("%s (%s): $%.1fM by %s - %s",
			t.Ticker, t.CompanyName, t.Value/1e6, t.InsiderName, title))
	}
	return strings.Join(lines, "\n")
}

func formatClusterLines(clusters []types.ClusterStat) string {
	if len(clusters) == 0 {
		return "None detected"
	}
	lines := make([]string, 0, len(clusters))
	for _, c := range clusters {
		lines = append(lines, fmt.Sprintf("%s (%s): %d buys, %d sells, total $%.1fM",
			c.Ticker, c.Company, c.Buys, c.Sells, c.TotalValue/1e6))
	}
	return strings.Join(lines, "\n")
}

const generatorSystemPrompt = "You are a financial data analyst summarizing insider trading disclosures. State only facts. Respond ONLY with valid JSON."

// completeWithOpenAI performs one chat completion against OpenAI.
func (g *Generator) completeWithOpenAI(ctx context.Context, prompt string) (string, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", errors.New("OPENAI_API_KEY missing")
	}

	body := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": generatorSystemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
		"max_tokens":  g.maxTokens,
	}

	req := api.NewRequest("POST", "https://api.openai.com/v1/chat/completions").
		WithContext(ctx).
		WithBody(body).
		WithHeader("Authorization", "Bearer "+apiKey)

	resp, err := g.client.DoWithRetry(req, nil)
	if err != nil {
		return "", err
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := resp.ParseJSON(&r); err != nil {
		return "", err
	}
	if len(r.Choices) == 0 {
		return "", errors.New("no choices")
	}

	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}

// completeWithClaude performs one message call against Claude.
func (g *Generator) completeWithClaude(ctx context.Context, prompt string) (string, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return "", errors.New("ANTHROPIC_API_KEY missing")
	}

	body := map[string]any{
		"model":      g.model,
		"max_tokens": g.maxTokens,
		"system":     generatorSystemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	req := api.NewRequest("POST", "https://api.anthropic.com/v1/messages").
		WithContext(ctx).
		WithBody(body).
		WithHeader("x-api-key", apiKey).
		WithHeader("anthropic-version", "2023-06-01")

	resp, err := g.client.DoWithRetry(req, nil)
	if err != nil {
		return "", err
	}

	var r struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := resp.ParseJSON(&r); err != nil {
		return "", err
	}
	if len(r.Content) == 0 {
		return "", errors.New("no content")
	}

	return strings.TrimSpace(r.Content[0].Text), nil
}
