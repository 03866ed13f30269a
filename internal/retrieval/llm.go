package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatTurn 历史对话轮次
type ChatTurn struct {
	Role    string
	Content string
}

// ChatOptions 单次对话的生成参数，零值回落到默认值
type ChatOptions struct {
	Temperature float32
	MaxTokens   int
}

const (
	defaultChatTemperature = 0.7
	defaultChatMaxTokens   = 500
)

// withDefaults 补齐未设置的参数
func (o ChatOptions) withDefaults() ChatOptions {
	if o.Temperature <= 0 {
		o.Temperature = defaultChatTemperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultChatMaxTokens
	}
	return o
}

// LLM 大模型能力抽象：摘要、实体抽取、问答与对话
type LLM interface {
	// Summarize 生成文档摘要
	Summarize(ctx context.Context, content string) (string, error)
	// ExtractEntities 返回模型原始输出，由调用方宽容解析
	ExtractEntities(ctx context.Context, content string) (string, error)
	// Answer 基于给定上下文回答问题
	Answer(ctx context.Context, question, contextText string) (string, error)
	// Chat 带历史与可选上下文的多轮对话，生成参数逐次可调
	Chat(ctx context.Context, query, contextText string, history []ChatTurn, opts ChatOptions) (string, error)
	Ready() bool
}

const chatSystemMessage = `You are a knowledgeable assistant specializing in pension plans and financial documents.
Your role is to help users understand their pension plans, related documents, and provide accurate information.
Always be professional, clear, and concise in your responses.
If you're not sure about something, be honest about it.
Base your responses on the provided context when available.`

const summarySystemMessage = `You are an expert at analyzing pension and financial documents.
Your task is to extract key information and provide a clear summary.
Focus on important details like terms, conditions, benefits, and requirements.`

// NoopLLM 默认占位实现
type NoopLLM struct{}

func (n *NoopLLM) Summarize(ctx context.Context, content string) (string, error) {
	return "", errors.New("llm provider not configured")
}

func (n *NoopLLM) ExtractEntities(ctx context.Context, content string) (string, error) {
	return "", errors.New("llm provider not configured")
}

func (n *NoopLLM) Answer(ctx context.Context, question, contextText string) (string, error) {
	return "", errors.New("llm provider not configured")
}

func (n *NoopLLM) Chat(ctx context.Context, query, contextText string, history []ChatTurn, opts ChatOptions) (string, error) {
	return "", errors.New("llm provider not configured")
}

func (n *NoopLLM) Ready() bool {
	return false
}

// OpenAILLM 使用OpenAI Chat Completion API
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// NewOpenAILLM 创建OpenAI对话模型客户端
func NewOpenAILLM(apiKey, model string) LLM {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopLLM{}
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAILLM{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (l *OpenAILLM) complete(ctx context.Context, system string, messages []openai.ChatCompletionMessage, temperature float32, maxTokens int) (string, error) {
	if l.client == nil {
		return "", errors.New("openai client not initialized")
	}

	req := openai.ChatCompletionRequest{
		Model:       l.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	req.Messages = append(req.Messages, messages...)

	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (l *OpenAILLM) Summarize(ctx context.Context, content string) (string, error) {
	prompt := fmt.Sprintf(`Please provide a concise summary of the following text:

%s

Summary:`, content)

	return l.complete(ctx, summarySystemMessage, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, 0.3, 1000)
}

func (l *OpenAILLM) ExtractEntities(ctx context.Context, content string) (string, error) {
	prompt := fmt.Sprintf(`Please analyze the following text and extract key entities (people, organizations, locations, concepts, etc.).
For each entity, provide:
1. The entity name
2. The entity type (person, organization, location, concept, etc.)
3. A relevant relationship to the document (mentioned_in, author_of, located_in, etc.)
4. Any additional properties

Format the response as a JSON array of objects with the following structure:
[{"name": "entity_name", "type": "entity_type", "relationship": "relationship_type", "properties": {"key": "value"}}]

Text to analyze:
%s

Entities (JSON format):`, content)

	return l.complete(ctx, "", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, 0.2, 1500)
}

func (l *OpenAILLM) Answer(ctx context.Context, question, contextText string) (string, error) {
	prompt := fmt.Sprintf(`Please answer the following question based on the provided context.
If the answer cannot be found in the context, say "I cannot answer this question based on the provided context."

Context:
%s

Question: %s

Answer:`, contextText, question)

	return l.complete(ctx, "", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, 0.3, 800)
}

func (l *OpenAILLM) Chat(ctx context.Context, query, contextText string, history []ChatTurn, opts ChatOptions) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	var prompt string
	if contextText != "" {
		prompt = fmt.Sprintf(`Here is some relevant context about pension plans and documents:

%s

Based on this context, please respond to the following query:
%s`, contextText, query)
	} else {
		prompt = fmt.Sprintf(`Please respond to the following query about pension plans:
%s

If you need more specific information about particular pension plans or documents, please let me know.`, query)
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	opts = opts.withDefaults()
	return l.complete(ctx, chatSystemMessage, messages, opts.Temperature, opts.MaxTokens)
}

func (l *OpenAILLM) Ready() bool {
	return l.client != nil
}
