// Package insight produces an optional plain-language review of a robot's
// backtest results through the DeepSeek chat API. It is advisory only and
// disabled by default; no trading decision depends on it.
package insight

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/robopilot/robopilot/internal/backtest"
	"github.com/robopilot/robopilot/internal/config"
	"github.com/robopilot/robopilot/internal/logger"
)

const systemPrompt = `You are a trading strategy reviewer. Given a strategy's rules and backtest metrics, write a short assessment (3-5 sentences): strengths, weaknesses and whether the sample size is large enough to trust the win rate. Plain text only.`

type Client struct {
	client *openai.Client
	model  string
	cfg    *config.Config
	logger *logger.Logger
}

func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	ocfg := openai.DefaultConfig(cfg.Insight.APIKey)
	ocfg.BaseURL = "https://api.deepseek.com/v1"

	return &Client{
		client: openai.NewClientWithConfig(ocfg),
		model:  cfg.Insight.Model,
		cfg:    cfg,
		logger: log,
	}
}

// Review asks the model to comment on a backtest outcome.
func (c *Client) Review(ctx context.Context, name, rulesJSON string, metrics backtest.Metrics) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.InsightTimeout())
	defer cancel()

	userPrompt := fmt.Sprintf(
		"Robot: %s\nRules: %s\nWin rate: %.2f%%\nTotal profit: %.5f\nTrades: %d (closed %d)",
		name, rulesJSON, metrics.WinRate, metrics.TotalProfit, metrics.TotalTrades, metrics.ClosedTrades)

	c.logger.Info("requesting strategy review", "robot", name)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("insight API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("insight returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
