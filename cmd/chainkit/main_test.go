package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/favbox/chainkit/components/model"
	"github.com/favbox/chainkit/config"
	mockmodel "github.com/favbox/chainkit/internal/mock/components/model"
	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
	"github.com/favbox/chainkit/store"
)

const promptText = `{"grp":1,"type":"constructor","id":["record","prompts","PromptTemplate"],"kwargs":{"input_variables":["topic"],"partial_variables":{"adjective":"funny"},"template":"Tell me a {adjective} joke about {topic}","template_format":"f-string"}}`

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) *env {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "chainkit.yaml")
	content := "log:\n  level: error\nstore:\n  driver: sqlite\n  sqlite:\n    path: " + filepath.Join(dir, "trees.db") + "\n"
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0o600))
	return &env{dir: dir, config: cfg}
}

func (e *env) file(t *testing.T, name, content string) string {
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content+"\n"), 0o600))
	return path
}

func (e *env) run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVerify(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("verify", e.file(t, "prompt.json", promptText))
	require.NoError(t, err)
	assert.Equal(t, "ok record/prompts/PromptTemplate\n", out)

	reordered := strings.Replace(promptText, `"grp":1,"type":"constructor"`, `"type":"constructor","grp":1`, 1)
	_, err = e.run("verify", e.file(t, "reordered.json", reordered))
	assert.ErrorIs(t, err, errNotFixedPoint)

	_, err = e.run("verify", e.file(t, "unknown.json", `{"grp":1,"type":"constructor","id":["x","Y"],"kwargs":{}}`))
	assert.Error(t, err)
}

func TestPutGetLsRm(t *testing.T) {
	e := newEnv(t)
	path := e.file(t, "prompt.json", promptText)

	out, err := e.run("put", "joke", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "joke "))

	out, err = e.run("get", "joke")
	require.NoError(t, err)
	assert.Equal(t, promptText+"\n", out)

	out, err = e.run("ls")
	require.NoError(t, err)
	assert.Equal(t, "joke\n", out)

	out, err = e.run("rm", "joke")
	require.NoError(t, err)
	assert.Equal(t, "removed joke\n", out)

	_, err = e.run("get", "joke")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSchema(t *testing.T) {
	e := newEnv(t)
	path := e.file(t, "prompt.json", promptText)

	out, err := e.run("schema", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"required": [`)
	assert.Contains(t, out, `"topic"`)
	assert.Contains(t, out, `"default": "funny"`)

	_, err = e.run("put", "joke", path)
	require.NoError(t, err)
	stored, err := e.run("schema", "joke")
	require.NoError(t, err)
	assert.Equal(t, out, stored)

	_, err = e.run("schema")
	assert.Error(t, err)
}

func TestBadConfig(t *testing.T) {
	_, err := (&env{config: filepath.Join(t.TempDir(), "missing.yaml")}).run("ls")
	assert.Error(t, err)
}

func TestTypes(t *testing.T) {
	out, err := newEnv(t).run("types")
	require.NoError(t, err)
	assert.Contains(t, out, "record/callable/CallableSequence\n")
	assert.Contains(t, out, "record/chat_models/ChatModel\n")
	assert.Contains(t, out, "record/prompts/PromptTemplate\n")
}

func TestRetryConfigReachesLoadedModels(t *testing.T) {
	e := newEnv(t)
	cfgPath := e.file(t, "retry.yaml",
		"log:\n  level: error\nretry:\n  max_retries: 2\n  initial_delay: 1ms\n  max_delay: 2ms\n  factor: 1\n  jitter: 0\n")

	a := &app{}
	cmd := a.rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "types"})
	require.NoError(t, cmd.Execute())
	require.NotNil(t, a.caller)

	ctrl := gomock.NewController(t)
	transport := mockmodel.NewMockTransport(ctrl)
	flaky := errors.New("flaky")
	gomock.InOrder(
		transport.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, flaky).Times(2),
		transport.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(schema.AssistantMessage("ok"), nil),
	)

	ctx := model.WithDefaultTransport(a.prepare(context.Background()), transport)
	m, err := serde.LoadAs[*model.ChatModel](ctx,
		`{"grp":1,"type":"constructor","id":["record","chat_models","ChatModel"],"kwargs":{"model_name":"m"}}`, nil)
	require.NoError(t, err)

	msg, err := m.Generate(ctx, []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)

	// 配置中的重试次数耗尽后返回最后一次错误
	a.cfg = config.Default()
	a.cfg.Retry.MaxRetries = 0
	ctx = model.WithDefaultTransport(a.prepare(context.Background()), transport)
	m, err = serde.LoadAs[*model.ChatModel](ctx,
		`{"grp":1,"type":"constructor","id":["record","chat_models","ChatModel"],"kwargs":{"model_name":"m"}}`, nil)
	require.NoError(t, err)
	transport.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, flaky)
	_, err = m.Generate(ctx, []*schema.Message{schema.UserMessage("hi")})
	assert.ErrorIs(t, err, flaky)
}
