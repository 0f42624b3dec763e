package main

/*
 * root.go - chainkit 命令行
 *
 * 子命令：
 *   - verify <file>       加载序列化文件并检查再次序列化结果与原文一致
 *   - put <name> <file>   校验后写入存储
 *   - get <name>          输出存储中的序列化文本
 *   - ls / rm <name>...   列出、删除存储条目
 *   - schema <name>       输出提示模板的输入 JSON Schema
 *   - types               列出已注册的构造器标识
 */

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/favbox/chainkit/caller"
	"github.com/favbox/chainkit/components/model"
	"github.com/favbox/chainkit/config"
	"github.com/favbox/chainkit/internal/logging"
	"github.com/favbox/chainkit/store"

	// 注册内置类型
	_ "github.com/favbox/chainkit/components/prompt"
	_ "github.com/favbox/chainkit/compose"
)

type app struct {
	configPath string
	cfg        *config.Config
	// caller 按 retry 配置创建，加载的 ChatModel 共享它
	caller *caller.Caller
}

func newRootCmd() *cobra.Command {
	return (&app{}).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chainkit",
		Short:         "Inspect and persist serialized chainkit pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			cmd.SetContext(a.prepare(cmd.Context()))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		a.verifyCmd(),
		a.putCmd(),
		a.getCmd(),
		a.lsCmd(),
		a.rmCmd(),
		a.schemaCmd(),
		a.typesCmd(),
	)
	return root
}

// prepare 把 logger 与按配置创建的调用器放入 ctx。
func (a *app) prepare(ctx context.Context) context.Context {
	logger := a.cfg.Logger()
	a.caller = caller.New(a.cfg.Caller(caller.WithName("chainkit"), caller.WithLogger(logger))...)
	ctx = logging.WithLogger(ctx, logger)
	return model.WithDefaultCaller(ctx, a.caller)
}

// withStore 打开配置的存储，执行 fn 后关闭。
func (a *app) withStore(ctx context.Context, fn func(s store.Store) error) error {
	s, err := a.cfg.OpenStore()
	if err != nil {
		return err
	}
	defer s.Close()
	logging.FromContext(ctx).Debug("store opened", "driver", a.cfg.Store.Driver)
	return fn(s)
}

// envSecrets 以全部环境变量作为密钥表，加载时只会读取树中声明的密钥。
func envSecrets() map[string]string {
	secrets := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			secrets[k] = v
		}
	}
	return secrets
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
