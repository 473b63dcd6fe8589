package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"

	"github.com/caldero/toolbridge/internal/chat"
	"github.com/caldero/toolbridge/internal/tools"
)

type openaiCompleter struct {
	log    *slog.Logger
	client *openai.Client
	model  string
	tools  []oresponses.ToolUnionParam
}

func newOpenAICompleter(cfg Config, defs []tools.Definition, log *slog.Logger) *openaiCompleter {
	opts := []ooption.RequestOption{ooption.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &openaiCompleter{
		log:    log,
		client: &client,
		model:  cfg.Model,
		tools:  openaiTools(defs),
	}
}

func (c *openaiCompleter) Complete(ctx context.Context, req chat.CompletionRequest) (chat.CompletionResponse, error) {
	params := oresponses.ResponseNewParams{
		Model: oshared.ResponsesModel(c.model),
		Input: oresponses.ResponseNewParamsInputUnion{
			OfInputItemList: openaiInput(req.Messages),
		},
		Tools: c.tools,
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	if strings.TrimSpace(req.System) != "" {
		params.Instructions = openai.String(req.System)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return chat.CompletionResponse{}, err
	}

	var out chat.CompletionResponse
	if text := resp.OutputText(); strings.TrimSpace(text) != "" {
		out.Content = append(out.Content, chat.TextBlock(text))
	}
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		var input map[string]any
		if err := json.Unmarshal([]byte(item.Arguments), &input); err != nil {
			c.log.Warn("function call arguments decode failed", "tool", item.Name, "error", err)
			input = map[string]any{}
		}
		out.Content = append(out.Content, chat.ToolUseBlock(item.CallID, item.Name, input))
	}
	return out, nil
}

func openaiTools(defs []tools.Definition) []oresponses.ToolUnionParam {
	out := make([]oresponses.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		out = append(out, oresponses.ToolParamOfFunction(def.Name, def.InputSchema, false))
	}
	return out
}

// openaiInput flattens the block-structured history into Responses API input
// items. Tool invocations and their results become function_call /
// function_call_output pairs keyed by the invocation id.
func openaiInput(msgs []chat.Message) []oresponses.ResponseInputItemUnionParam {
	var items []oresponses.ResponseInputItemUnionParam
	for _, m := range msgs {
		role := oresponses.EasyInputMessageRoleUser
		if m.Role == "assistant" {
			role = oresponses.EasyInputMessageRoleAssistant
		}
		for _, b := range m.Content {
			switch b.Type {
			case chat.BlockText:
				if strings.TrimSpace(b.Text) == "" {
					continue
				}
				items = append(items, oresponses.ResponseInputItemParamOfMessage(b.Text, role))
			case chat.BlockToolUse:
				raw, err := json.Marshal(b.Input)
				if err != nil {
					raw = []byte("{}")
				}
				items = append(items, oresponses.ResponseInputItemParamOfFunctionCall(string(raw), b.ID, b.Name))
			case chat.BlockToolResult:
				items = append(items, oresponses.ResponseInputItemParamOfFunctionCallOutput(b.ToolUseID, b.Content))
			}
		}
	}
	return items
}
