package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gnana997/designparity/pkg/config"
	"github.com/gnana997/designparity/pkg/mcplog"
	"github.com/gnana997/designparity/pkg/mcpserver"
	"github.com/gnana997/designparity/pkg/pipeline"
	"github.com/gnana997/designparity/pkg/pixeldiff"
	"github.com/gnana997/designparity/pkg/provider"
	"github.com/gnana997/designparity/pkg/util"
	"github.com/gnana997/designparity/pkg/webx"
)

// deps bundles the long-lived pieces shared by serve and compare.
type deps struct {
	resolver *provider.Resolver
	browser  *webx.Browser
	svc      *pipeline.Service
}

func (d *deps) close() {
	if d.browser != nil {
		d.browser.Close()
	}
	d.resolver.Reset()
}

// buildPipeline wires the provider resolver, the browser, and the web
// extractor into a comparison service. A browser that fails to launch is
// tolerated: web extraction degrades to the static fetcher and the result
// metadata says so.
func buildPipeline(st *config.Settings, logger *slog.Logger) (*deps, error) {
	resolver := provider.NewResolver(provider.Config{
		RemoteURL:   st.RemoteMCPURL,
		DesktopPort: st.DesktopPort,
		ProxyURL:    st.ProxyURL,
		Getenv:      os.Getenv,
		Logger:      logger,
	})

	browser, err := webx.Launch(webx.BrowserConfig{
		AttachURL: st.BrowserURL,
		Logger:    logger,
	})
	if err != nil {
		logger.Warn("browser unavailable, web extraction degrades to static fetch", "error", err)
		browser = nil
	}

	web := webx.NewExtractor(webx.Config{
		Browser:    browser,
		Navigator:  webx.NewNavigator(st.NavTimeout(), st.SlowSitePatterns, logger),
		ElementCap: st.ElementCap,
		Logger:     logger,
	})

	svc, err := pipeline.New(pipeline.Config{
		Resolver: resolver,
		Web:      web,
		Logger:   logger,
	})
	if err != nil {
		if browser != nil {
			browser.Close()
		}
		return nil, err
	}
	return &deps{resolver: resolver, browser: browser, svc: svc}, nil
}

// runServe wires the pipeline and serves MCP requests over stdio until the
// client disconnects. Stdout carries protocol frames only; all logging goes
// to stderr.
func runServe(args []string) {
	st, err := loadSettings(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := util.NewLogger(util.LoggerConfig{
		Level:  util.LogLevel(st.LogLevel),
		Format: util.LogFormat(st.LogFormat),
		Output: os.Stderr,
	})
	util.SetDefault(logger)

	callLog, err := mcplog.NewLogger(st.MCPLogPath)
	if err != nil {
		logger.Warn("tool-call log disabled", "path", st.MCPLogPath, "error", err)
	}
	if callLog != nil {
		defer callLog.Close()
	}

	d, err := buildPipeline(st, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build pipeline: %v\n", err)
		os.Exit(1)
	}
	defer d.close()

	srv, err := mcpserver.NewServer(mcpserver.Config{
		Service:  d.svc,
		Pixels:   pixeldiff.New(logger),
		Resolver: d.resolver,
		Defaults: &st.Comparison,
		CallLog:  callLog,
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build server: %v\n", err)
		os.Exit(1)
	}

	// Edits to the project config swap the comparison defaults without a
	// restart.
	watcher, err := config.NewWatcher(loadOpts(args), func(s *config.Settings) {
		if err := srv.UpdateSettings(s.Comparison); err != nil {
			logger.Warn("config reload rejected", "error", err)
		}
	}, logger)
	if err != nil {
		logger.Warn("config watch disabled", "error", err)
	} else if err := watcher.Start(); err != nil {
		logger.Warn("config watch disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	logger.Info("starting MCP server", "version", version)
	if err := srv.ServeStdio(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
