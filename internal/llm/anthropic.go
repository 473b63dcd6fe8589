package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/caldero/toolbridge/internal/chat"
	"github.com/caldero/toolbridge/internal/tools"
)

type anthropicCompleter struct {
	log    *slog.Logger
	client *anthropic.Client
	model  string
	tools  []anthropic.ToolUnionParam
}

func newAnthropicCompleter(cfg Config, defs []tools.Definition, log *slog.Logger) *anthropicCompleter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &anthropicCompleter{
		log:    log,
		client: &client,
		model:  cfg.Model,
		tools:  anthropicTools(defs),
	}
}

func (c *anthropicCompleter) Complete(ctx context.Context, req chat.CompletionRequest) (chat.CompletionResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  anthropicMessages(req.Messages),
		Tools:     c.tools,
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.ThinkingEnabled {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ThinkingBudget))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return chat.CompletionResponse{}, err
	}

	var out chat.CompletionResponse
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content = append(out.Content, chat.TextBlock(v.Text))
		case anthropic.ToolUseBlock:
			var input map[string]any
			if err := json.Unmarshal(v.Input, &input); err != nil {
				c.log.Warn("tool input decode failed", "tool", v.Name, "error", err)
				input = map[string]any{}
			}
			out.Content = append(out.Content, chat.ToolUseBlock(v.ID, v.Name, input))
		case anthropic.ThinkingBlock:
			out.Thinking = v.Thinking
			out.Content = append(out.Content, chat.ThinkingBlock(v.Thinking, v.Signature))
		}
	}
	return out, nil
}

func anthropicTools(defs []tools.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		props, _ := def.InputSchema["properties"].(map[string]any)
		tp := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: props,
				Required:   schemaRequired(def.InputSchema),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tp})
	}
	return out
}

func schemaRequired(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func anthropicMessages(msgs []chat.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case chat.BlockThinking:
				// Signed thinking blocks must be replayed ahead of the tool
				// calls they produced or the API rejects the tool results.
				if b.Signature == "" {
					continue
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfThinking: &anthropic.ThinkingBlockParam{
						Thinking:  b.Text,
						Signature: b.Signature,
					},
				})
			case chat.BlockText:
				if strings.TrimSpace(b.Text) != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case chat.BlockToolUse:
				raw, err := json.Marshal(b.Input)
				if err != nil {
					raw = []byte("{}")
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    b.ID,
						Name:  b.Name,
						Input: json.RawMessage(raw),
					},
				})
			case chat.BlockToolResult:
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: b.ToolUseID,
						Content: []anthropic.ToolResultBlockParamContentUnion{
							{OfText: &anthropic.TextBlockParam{Text: b.Content}},
						},
					},
				})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}
