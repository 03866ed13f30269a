package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pensionos/search-go/internal/retrieval"
)

// newMockDB 基于sqlmock构造gorm连接
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

// fakeEmbedder 返回固定向量并统计调用次数
type fakeEmbedder struct {
	vector []float32
	fail   bool
	calls  int64
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }

func (f *fakeEmbedder) Ready() bool { return !f.fail }

func (f *fakeEmbedder) callCount() int64 { return atomic.LoadInt64(&f.calls) }

// fakeLLM 返回预置输出并记录对话入参
type fakeLLM struct {
	summary     string
	entitiesRaw string
	answer      string
	chatReply   string
	failSummary bool
	failChat    bool

	lastQuery   string
	lastContext string
	lastHistory []retrieval.ChatTurn
	lastOpts    retrieval.ChatOptions
}

func (f *fakeLLM) Summarize(ctx context.Context, content string) (string, error) {
	if f.failSummary {
		return "", errors.New("llm down")
	}
	return f.summary, nil
}

func (f *fakeLLM) ExtractEntities(ctx context.Context, content string) (string, error) {
	return f.entitiesRaw, nil
}

func (f *fakeLLM) Answer(ctx context.Context, question, contextText string) (string, error) {
	f.lastQuery = question
	f.lastContext = contextText
	return f.answer, nil
}

func (f *fakeLLM) Chat(ctx context.Context, query, contextText string, history []retrieval.ChatTurn, opts retrieval.ChatOptions) (string, error) {
	if f.failChat {
		return "", errors.New("llm down")
	}
	f.lastQuery = query
	f.lastContext = contextText
	f.lastHistory = history
	f.lastOpts = opts
	return f.chatReply, nil
}

func (f *fakeLLM) Ready() bool { return true }

// failingGraphStore 写入即失败，用于验证孤儿向量条目
type failingGraphStore struct {
	retrieval.GraphStore
}

func (f *failingGraphStore) UpsertDocumentNode(ctx context.Context, id, title, content string, metadata map[string]interface{}) error {
	return errors.New("neo4j unavailable")
}
