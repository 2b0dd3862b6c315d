package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/0x6d61/vulnbot/internal/agent"
	"github.com/0x6d61/vulnbot/internal/brain"
	"github.com/0x6d61/vulnbot/internal/config"
	"github.com/0x6d61/vulnbot/internal/mcp"
	"github.com/0x6d61/vulnbot/internal/mitre"
	"github.com/0x6d61/vulnbot/internal/nvd"
	"github.com/0x6d61/vulnbot/internal/tools"
)

// localRegistry は NVD クライアントと ATT&CK インデックスを組み込みツールとして登録する。
// インデックスが未作成ならテクニック系ツールは登録せず警告だけ出す。
func localRegistry(c *config.AppConfig, log *zap.Logger) (*tools.Registry, func(), error) {
	cves := nvd.New(nvd.Config{
		BaseURL:  c.NVD.BaseURL,
		APIKey:   c.NVD.APIKey,
		CacheDir: c.NVD.CacheDir,
		CacheTTL: c.NVD.CacheTTL,
		Timeout:  c.NVD.Timeout,
	}, log)

	cleanup := func() {}
	var techniques tools.TechniqueLookup
	store, err := mitre.Open(c.Mitre.DBPath)
	switch {
	case err == nil:
		techniques = store
		cleanup = func() { _ = store.Close() }
	case errors.Is(err, os.ErrNotExist):
		log.Warn("ATT&CK index not found, technique tools disabled (run `vulnbot init`)",
			zap.String("path", c.Mitre.DBPath))
	default:
		return nil, nil, err
	}

	reg := tools.NewRegistry(tools.WithTimeout(c.Tools.Timeout))
	if err := tools.RegisterLookups(reg, cves, techniques); err != nil {
		cleanup()
		return nil, nil, err
	}
	return reg, cleanup, nil
}

// remoteToolbox は外部の MCP サーバー（TCP 接続、設定ファイルのサブプロセス、
// どちらも無ければ自分自身の serve）をツール層にする。
func remoteToolbox(ctx context.Context, c *config.AppConfig, addr string, log *zap.Logger) (*mcp.RemoteTools, func(), error) {
	if addr != "" {
		client, err := mcp.Dial(ctx, addr, log)
		if err != nil {
			return nil, nil, err
		}
		if _, err := client.Initialize(ctx, "vulnbot", Version); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		rt, err := mcp.NewRemoteTools(ctx, client, c.Tools.Timeout)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return rt, func() { _ = client.Close() }, nil
	}

	servers := c.MCPServers()
	if len(servers) == 0 {
		// サーバー未設定なら自分自身を serve モードで起動する
		self, err := selfServer()
		if err != nil {
			return nil, nil, err
		}
		servers = []mcp.ServerConfig{self}
	}
	mgr := mcp.NewManager(log)
	if err := mgr.StartAll(ctx, servers, Version); err != nil {
		_ = mgr.Close()
		return nil, nil, err
	}
	rt, err := mcp.NewRemoteTools(ctx, mgr, c.Tools.Timeout)
	if err != nil {
		_ = mgr.Close()
		return nil, nil, err
	}
	return rt, func() { _ = mgr.Close() }, nil
}

// selfServer は実行中のバイナリを "serve" サブコマンドで起動する設定を返す。
func selfServer() (mcp.ServerConfig, error) {
	self, err := os.Executable()
	if err != nil {
		return mcp.ServerConfig{}, fmt.Errorf("failed to locate executable: %w", err)
	}
	return mcp.ServerConfig{
		Name:    "vulnbot",
		Command: self,
		Args:    []string{"serve", "--config", configPath, "--env-file", envFile},
	}, nil
}

// sessionOptions は start / ask が共有するツール層の選択。
type sessionOptions struct {
	remote  bool
	connect string
}

// newSession は Brain・ツール層・推論ループを組み立てる。
func newSession(ctx context.Context, opts sessionOptions, events chan<- agent.Event, log *zap.Logger) (*agent.Loop, []tools.Descriptor, brain.Config, func(), error) {
	bcfg, err := brain.LoadConfig(brain.ConfigHint{
		Provider: brain.Provider(cfg.LLM.Provider),
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, nil, bcfg, nil, err
	}
	br, err := brain.New(bcfg)
	if err != nil {
		return nil, nil, bcfg, nil, err
	}

	var (
		toolbox agent.Toolbox
		cleanup func()
	)
	if opts.remote || opts.connect != "" {
		rt, c, err := remoteToolbox(ctx, cfg, opts.connect, log)
		if err != nil {
			return nil, nil, bcfg, nil, err
		}
		toolbox, cleanup = rt, c
	} else {
		reg, c, err := localRegistry(cfg, log)
		if err != nil {
			return nil, nil, bcfg, nil, err
		}
		toolbox, cleanup = reg, c
	}

	loopOpts := []agent.Option{
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithTemperature(cfg.LLM.Temperature),
		agent.WithLogger(log),
	}
	if events != nil {
		loopOpts = append(loopOpts, agent.WithEvents(events))
	}
	loop := agent.NewLoop(br, toolbox, loopOpts...)
	log.Info("session ready",
		zap.String("session", loop.Session().ID()),
		zap.String("provider", string(bcfg.Provider)),
		zap.String("model", bcfg.Model),
		zap.Int("tools", len(toolbox.Descriptors())))
	return loop, toolbox.Descriptors(), bcfg, cleanup, nil
}
