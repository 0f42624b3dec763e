package model_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/favbox/chainkit/caller"
	"github.com/favbox/chainkit/components/model"
	"github.com/favbox/chainkit/components/prompt"
	"github.com/favbox/chainkit/compose"
	mockModel "github.com/favbox/chainkit/internal/mock/components/model"
	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string { return fmt.Sprintf("status %d", e.code) }

func (e *statusErr) StatusCode() int { return e.code }

func fastCaller() *caller.Caller {
	return caller.New(
		caller.WithInitialDelay(time.Millisecond),
		caller.WithMaxDelay(2*time.Millisecond),
		caller.WithMaxRetries(2),
	)
}

func TestNewChatModel(t *testing.T) {
	t.Setenv("CHAT_MODEL_API_KEY", "env-key")

	m, err := model.NewChatModel("gpt-x")
	require.NoError(t, err)
	assert.Equal(t, "env-key", m.APIKey)

	m, err = model.NewChatModel("gpt-x", model.WithAPIKey("given"))
	require.NoError(t, err)
	assert.Equal(t, "given", m.APIKey)

	_, err = model.NewChatModel("")
	assert.ErrorIs(t, err, schema.ErrValidation)

	_, err = model.NewChatModel("gpt-x", model.WithTemperature(-1))
	assert.ErrorIs(t, err, schema.ErrValidation)
}

func TestSerializeHidesKey(t *testing.T) {
	m, err := model.NewChatModel("gpt-x", model.WithAPIKey("sk-123"), model.WithTemperature(0.5))
	require.NoError(t, err)

	text, err := serde.Serialize(m)
	require.NoError(t, err)
	assert.NotContains(t, text, "sk-123")

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "chat_model", []byte(text))
}

func TestInvoke(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mockModel.NewMockTransport(ctrl)

	tr.EXPECT().Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.Request) (*schema.Message, error) {
			assert.Equal(t, "gpt-x", req.Model)
			assert.Equal(t, "sk-123", req.APIKey)
			require.Len(t, req.Messages, 1)
			assert.Equal(t, schema.User, req.Messages[0].Role)
			return schema.AssistantMessage("echo: " + req.Messages[0].Content), nil
		})

	m, err := model.NewChatModel("gpt-x", model.WithAPIKey("sk-123"),
		model.WithTransport(tr), model.WithCaller(fastCaller()))
	require.NoError(t, err)

	out, err := m.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out.(*schema.Message).Content)
}

func TestInvokeRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mockModel.NewMockTransport(ctrl)
	gomock.InOrder(
		tr.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset")),
		tr.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(schema.AssistantMessage("ok"), nil),
	)

	m, err := model.NewChatModel("gpt-x", model.WithTransport(tr), model.WithCaller(fastCaller()))
	require.NoError(t, err)

	out, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Content)
}

func TestInvokeClientError(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mockModel.NewMockTransport(ctrl)
	unauthorized := &statusErr{code: 401}
	tr.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, unauthorized).Times(1)

	m, err := model.NewChatModel("gpt-x", model.WithTransport(tr), model.WithCaller(fastCaller()))
	require.NoError(t, err)

	_, err = m.Invoke(context.Background(), "hi")
	assert.Same(t, unauthorized, err)
}

func TestInvokeErrors(t *testing.T) {
	m, err := model.NewChatModel("gpt-x", model.WithCaller(fastCaller()))
	require.NoError(t, err)

	_, err = m.Invoke(context.Background(), "hi")
	assert.ErrorIs(t, err, model.ErrNoTransport)

	ctrl := gomock.NewController(t)
	tr := mockModel.NewMockTransport(ctrl)
	m, err = model.NewChatModel("gpt-x", model.WithTransport(tr), model.WithCaller(fastCaller()))
	require.NoError(t, err)

	_, err = m.Invoke(context.Background(), 42)
	assert.ErrorContains(t, err, "unsupported input int")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Invoke(ctx, "hi")
	assert.True(t, schema.IsAbort(err))
}

func TestStream(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mockModel.NewMockTransport(ctrl)
	tr.EXPECT().Stream(gomock.Any(), gomock.Any()).Return(schema.StreamReaderFromArray([]*schema.Message{
		schema.AssistantMessage("he"),
		schema.AssistantMessage("llo"),
	}), nil)

	m, err := model.NewChatModel("gpt-x", model.WithTransport(tr), model.WithCaller(fastCaller()))
	require.NoError(t, err)

	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	chunks, err := schema.ConcatStream(sr)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	msgs := make([]*schema.Message, 0, len(chunks))
	for _, c := range chunks {
		msgs = append(msgs, c.(*schema.Message))
	}
	merged, err := schema.ConcatMessages(msgs)
	require.NoError(t, err)
	assert.Equal(t, "hello", merged.Content)
}

func TestLoad(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mockModel.NewMockTransport(ctrl)
	tr.EXPECT().Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.Request) (*schema.Message, error) {
			assert.Equal(t, "from-secrets", req.APIKey)
			assert.Equal(t, 0.5, req.Temperature)
			return schema.AssistantMessage("loaded"), nil
		})

	m, err := model.NewChatModel("gpt-x", model.WithAPIKey("sk-123"), model.WithTemperature(0.5))
	require.NoError(t, err)
	text, err := serde.Serialize(m)
	require.NoError(t, err)

	ctx := model.WithDefaultTransport(context.Background(), tr)
	ctx = model.WithDefaultCaller(ctx, fastCaller())
	loaded, err := serde.LoadAs[*model.ChatModel](ctx, text, map[string]string{"CHAT_MODEL_API_KEY": "from-secrets"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-x", loaded.ModelName)

	out, err := loaded.Invoke(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "loaded", out.(*schema.Message).Content)

	again, err := serde.Serialize(loaded)
	require.NoError(t, err)
	assert.Equal(t, text, again)

	// 缺失密钥时字段保持零值
	noKey, err := serde.LoadAs[*model.ChatModel](context.Background(), text, nil)
	require.NoError(t, err)
	assert.Empty(t, noKey.APIKey)
}

func TestPromptToModel(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mockModel.NewMockTransport(ctrl)
	tr.EXPECT().Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.Request) (*schema.Message, error) {
			return schema.AssistantMessage(req.Messages[0].Content), nil
		})

	p, err := prompt.NewPromptTemplate("Translate {text}", schema.FString)
	require.NoError(t, err)
	m, err := model.NewChatModel("gpt-x", model.WithTransport(tr), model.WithCaller(fastCaller()))
	require.NoError(t, err)

	chain := compose.Typed[map[string]any, *schema.Message](compose.MustPipe(p, m))
	out, err := chain.Invoke(context.Background(), map[string]any{"text": "bonjour"})
	require.NoError(t, err)
	assert.Equal(t, "Translate bonjour", out.Content)
}
