package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pensionos/search-go/internal/errors"
	"github.com/pensionos/search-go/internal/logger"
	"github.com/pensionos/search-go/internal/metrics"
	"github.com/pensionos/search-go/internal/models"
	"github.com/pensionos/search-go/internal/retrieval"
)

// ChatService 对话服务：历史窗口、范围化检索上下文、LLM应答
type ChatService struct {
	db            *gorm.DB
	redis         *redis.Client
	fusion        *retrieval.FusionEngine
	llm           retrieval.LLM
	historyWindow int
	historyTTL    time.Duration
	chatDefaults  retrieval.ChatOptions
}

// NewChatService 创建对话服务，redis可为nil（历史直接走数据库）。
// chatDefaults为请求未指定生成参数时的缺省值。
func NewChatService(db *gorm.DB, redisClient *redis.Client, fusion *retrieval.FusionEngine, llm retrieval.LLM, historyWindow int, historyTTL time.Duration, chatDefaults retrieval.ChatOptions) *ChatService {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	if historyTTL <= 0 {
		historyTTL = 5 * time.Minute
	}
	return &ChatService{
		db:            db,
		redis:         redisClient,
		fusion:        fusion,
		llm:           llm,
		historyWindow: historyWindow,
		historyTTL:    historyTTL,
		chatDefaults:  chatDefaults,
	}
}

// ChatRequest 对话请求。生成参数与历史开关可选，缺省取配置值
type ChatRequest struct {
	ClientID       uint     `json:"client_id" validate:"required"`
	Query          string   `json:"query" validate:"required"`
	IncludeHistory *bool    `json:"include_history,omitempty"`
	MaxTokens      *int     `json:"max_tokens,omitempty"`
	Temperature    *float32 `json:"temperature,omitempty"`
}

// ChatResponse 对话响应
type ChatResponse struct {
	Response    string `json:"response"`
	ContextUsed bool   `json:"context_used"`
}

// Chat 处理一轮对话。上下文组装失败只记日志不中断，
// 退化为无上下文应答；应答成功后两条消息一并落库。
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.NewValidationError("query is empty")
	}

	var client models.Client
	if err := s.db.WithContext(ctx).Preload("PensionPlans.Documents").First(&client, req.ClientID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("client")
		}
		return nil, errors.NewStoreReadError(StageDatabase, err)
	}

	var history []retrieval.ChatTurn
	if req.IncludeHistory == nil || *req.IncludeHistory {
		history = s.loadHistory(ctx, req.ClientID)
	}
	contextText := s.buildContext(ctx, req.Query, &client)

	opts := s.chatDefaults
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}

	answer, err := s.llm.Chat(ctx, req.Query, contextText, history, opts)
	if err != nil {
		return nil, errors.NewBusinessError(errors.ErrCodeExternalService, "chat completion failed").
			WithStage(StageLLM).WithCause(err)
	}

	// 历史轮次同样构成模型可依据的上下文
	contextUsed := contextText != "" || len(history) > 0
	metrics.ChatTurns.WithLabelValues(boolLabel(contextUsed)).Inc()

	if err := s.persistTurns(ctx, req.ClientID, req.Query, answer); err != nil {
		// 应答已生成，落库失败不吞掉答案
		logger.Error("对话消息落库失败", zap.Uint("client_id", req.ClientID), zap.Error(err))
	}

	return &ChatResponse{Response: answer, ContextUsed: contextUsed}, nil
}

// loadHistory 取最近的历史轮次，按时间正序返回。
// 优先读Redis缓存，未命中回源数据库并回填。
func (s *ChatService) loadHistory(ctx context.Context, clientID uint) []retrieval.ChatTurn {
	cacheKey := historyCacheKey(clientID)

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var turns []retrieval.ChatTurn
			if jsonErr := json.Unmarshal([]byte(cached), &turns); jsonErr == nil {
				return turns
			}
		} else if err != redis.Nil {
			logger.Warn("历史缓存读取失败", zap.Uint("client_id", clientID), zap.Error(err))
		}
	}

	var messages []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Limit(s.historyWindow).
		Find(&messages).Error
	if err != nil {
		logger.Warn("历史消息查询失败", zap.Uint("client_id", clientID), zap.Error(err))
		return nil
	}

	// 查询按时间倒序取窗口，反转为正序喂给模型
	turns := make([]retrieval.ChatTurn, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		turns = append(turns, retrieval.ChatTurn{Role: messages[i].Role, Content: messages[i].Content})
	}

	if s.redis != nil && len(turns) > 0 {
		if data, err := json.Marshal(turns); err == nil {
			if err := s.redis.Set(ctx, cacheKey, data, s.historyTTL).Err(); err != nil {
				logger.Warn("历史缓存写入失败", zap.Uint("client_id", clientID), zap.Error(err))
			}
		}
	}
	return turns
}

// buildContext 以客户名下的计划与文档为候选构建检索上下文。
// 任何失败都返回空上下文，对话本身不受影响。
func (s *ChatService) buildContext(ctx context.Context, query string, client *models.Client) string {
	if len(client.PensionPlans) == 0 {
		return ""
	}

	var req retrieval.ContextRequest
	req.Query = query
	for _, plan := range client.PensionPlans {
		if len(plan.Embedding) > 0 {
			req.Plans = append(req.Plans, retrieval.PlanCandidate{
				ID:                plan.ID,
				CompanyName:       plan.CompanyName,
				PlanType:          plan.PlanType,
				Description:       plan.Description,
				MainContact:       plan.MainContact,
				ParticipantsCount: plan.ParticipantsCount,
				Embedding:         plan.Embedding,
				CreatedAt:         plan.CreatedAt,
			})
		}
		for _, doc := range plan.Documents {
			if len(doc.Embedding) == 0 {
				continue
			}
			req.Documents = append(req.Documents, retrieval.DocumentCandidate{
				DocID:          doc.DocID,
				Filename:       doc.Filename,
				PlanCompany:    plan.CompanyName,
				Summary:        doc.Summary,
				KeyInformation: doc.KeyInformation,
				Embedding:      doc.Embedding,
				CreatedAt:      doc.CreatedAt,
			})
		}
	}

	bundle, err := s.fusion.BuildContext(ctx, req)
	if err != nil {
		logger.Warn("检索上下文组装失败", zap.Uint("client_id", client.ID), zap.Error(err))
		return ""
	}
	if !bundle.ThresholdMet {
		metrics.ContextFallbacks.Inc()
	}
	return bundle.Text
}

func (s *ChatService) persistTurns(ctx context.Context, clientID uint, query, answer string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userMsg := &models.ChatMessage{ClientID: clientID, Role: "user", Content: query}
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		assistantMsg := &models.ChatMessage{ClientID: clientID, Role: "assistant", Content: answer}
		return tx.Create(assistantMsg).Error
	})
	if err != nil {
		return err
	}

	// 历史已变化，失效缓存
	if s.redis != nil {
		if err := s.redis.Del(ctx, historyCacheKey(clientID)).Err(); err != nil {
			logger.Warn("历史缓存失效失败", zap.Uint("client_id", clientID), zap.Error(err))
		}
	}
	return nil
}

// History 返回客户最近的对话记录，时间正序
func (s *ChatService) History(ctx context.Context, clientID uint, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = s.historyWindow
	}
	var messages []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, errors.NewStoreReadError(StageDatabase, err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func historyCacheKey(clientID uint) string {
	return fmt.Sprintf("chat:history:%d", clientID)
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
