package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mindbridge/intake/internal/models"
)

const systemPrompt = `You are a warm, grounded friend who genuinely listens.

Guidelines:
- Sound natural and conversational. 1 to 3 sentences is perfect.
- Mirror helpful language from the user so they feel heard.
- Offer a gentle reflection plus one curious question when it fits.
- Keep the tone calm, encouraging, and human. No clinical jargon, no bullet lists.
- Never mention your internal reasoning, only share the final reply.`

// stageGuidance steers the model per intake stage. Not shown to the user.
var stageGuidance = map[models.Stage]string{
	models.StageGreeting:      "Open with a heartfelt welcome and a short invitation to share. One or two sentences, warm and human.",
	models.StageCheckIn:       "They responded. Reflect their tone briefly and ask how they're feeling today, like a caring friend.",
	models.StageUnderstanding: "They've shared a bit. Acknowledge what you heard and ask what brought them here. Stay gentle, under three sentences.",
	models.StageExploring:     "They described something tough. Validate it in your own words and ask what's been most challenging recently.",
	models.StageContext:       "Keep the conversation flowing. Mirror what you've heard and ask one follow-up to understand their situation better.",
	models.StageAssessment:    "They've opened up a lot. Thank them, reflect the core of what they shared, and gently offer to connect them with a volunteer therapist at no cost.",
}

// Client produces replies via the Anthropic API.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM responder with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// Reply generates the assistant's next conversational turn.
func (c *Client) Reply(ctx context.Context, stage models.Stage, history []Turn) (string, error) {
	system := systemPrompt
	if guidance, ok := stageGuidance[stage]; ok {
		system += "\n\nRight now: " + guidance
	}

	var msgs []anthropic.MessageParam
	for _, t := range history {
		if t.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		}
	}

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 300,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "I'm here with you. Tell me more about how today feels.", nil
	}
	return text, nil
}

// CannedResponder replies from a fixed per-stage script. Used when no API key
// is configured and in tests.
type CannedResponder struct{}

var cannedReplies = map[models.Stage]string{
	models.StageGreeting:      "Hi, I'm really glad you reached out. This is a safe space. What's on your mind today?",
	models.StageCheckIn:       "Thanks for sharing that. How are you feeling right now, honestly?",
	models.StageUnderstanding: "I hear you. Can you tell me a little about what brought you here today?",
	models.StageExploring:     "That sounds really hard, and it makes sense that it weighs on you. What's been the most difficult part lately?",
	models.StageContext:       "I appreciate you opening up. Is there anything else about your situation you'd like me to understand?",
	models.StageAssessment:    "Thank you for trusting me with all of this. Would it feel helpful if I connected you with a volunteer therapist, at no cost?",
}

// Reply returns the scripted line for the stage.
func (CannedResponder) Reply(_ context.Context, stage models.Stage, _ []Turn) (string, error) {
	if r, ok := cannedReplies[stage]; ok {
		return r, nil
	}
	return "I'm here with you. Tell me more about how today feels.", nil
}
