package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gnana997/designparity/pkg/pipeline"
	"github.com/gnana997/designparity/pkg/pixeldiff"
	"github.com/gnana997/designparity/pkg/provider"
	"github.com/gnana997/designparity/pkg/schema"
	"github.com/gnana997/designparity/pkg/webx"
)

// jsonResult marshals v into a text result. Handler errors travel as tool
// results, never as Go errors, so clients always get a structured reply.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError("encode result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func cacheKey(figmaURL, webURL string, settings schema.ComparisonSettings) string {
	return figmaURL + "\n" + webURL + "\n" + settings.Hash()
}

// parseMode validates an optional mode argument. Empty means no override.
func parseMode(raw string) (provider.Mode, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	m, ok := provider.ParseMode(raw)
	if !ok {
		return "", fmt.Errorf("unknown mode %q: use api, desktop, oauth, or proxy", raw)
	}
	return m, nil
}

// settingsFor overlays per-call arguments on the server defaults.
func (s *Server) settingsFor(request mcp.CallToolRequest) (schema.ComparisonSettings, error) {
	settings := s.defaultSettings()
	if v := request.GetFloat("threshold", -1); v >= 0 {
		settings.Threshold = v
	}
	if v := request.GetInt("colorTolerance", -1); v >= 0 {
		settings.ColorTolerance = v
	}
	if errs := settings.Validate(); len(errs) > 0 {
		return settings, fmt.Errorf("invalid settings: %v", errs)
	}
	return settings, nil
}

func (s *Server) handleCompareDesigns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	figmaURL, err := request.RequireString("figmaUrl")
	if err != nil || strings.TrimSpace(figmaURL) == "" {
		return mcp.NewToolResultError("figmaUrl is required"), nil
	}
	webURL, err := request.RequireString("webUrl")
	if err != nil || strings.TrimSpace(webURL) == "" {
		return mcp.NewToolResultError("webUrl is required"), nil
	}
	mode, err := parseMode(request.GetString("mode", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	settings, err := s.settingsFor(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	key := cacheKey(figmaURL, webURL, settings)
	noCache := request.GetBool("noCache", false)
	if !noCache {
		if cached, ok := s.cache.Get(key); ok {
			s.log.Debug("comparison served from cache",
				slog.String("figmaUrl", figmaURL),
				slog.String("webUrl", webURL))
			return jsonResult(cached)
		}
	}

	result, err := s.svc.CompareURLs(ctx, pipeline.Request{
		FigmaURL:   figmaURL,
		WebURL:     webURL,
		Settings:   &settings,
		FigmaToken: request.GetString("figmaToken", ""),
		Mode:       mode,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !noCache {
		s.cache.Add(key, result)
	}
	return jsonResult(result)
}

func (s *Server) handleExtractFigma(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	figmaURL, err := request.RequireString("figmaUrl")
	if err != nil || strings.TrimSpace(figmaURL) == "" {
		return mcp.NewToolResultError("figmaUrl is required"), nil
	}
	mode, err := parseMode(request.GetString("mode", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.svc.ExtractFigma(ctx, pipeline.Request{
		FigmaURL:   figmaURL,
		FigmaToken: request.GetString("figmaToken", ""),
		Mode:       mode,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) handleExtractWeb(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil || strings.TrimSpace(url) == "" {
		return mcp.NewToolResultError("url is required"), nil
	}

	req := pipeline.Request{
		WebURL:     url,
		Screenshot: request.GetBool("screenshot", false),
		FullPage:   request.GetBool("fullPage", false),
	}
	if user := request.GetString("username", ""); user != "" {
		req.Login = &webx.LoginCredentials{
			Username: user,
			Password: request.GetString("password", ""),
		}
	}

	res, err := s.svc.ExtractWeb(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Screenshot bytes never travel through the tool response; they land
	// in a file and the response carries the path.
	shotPath := ""
	if len(res.Screenshot) > 0 {
		shotPath, err = s.writeScreenshot(res.Screenshot, request.GetString("screenshotPath", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res.Screenshot = nil
	}

	return jsonResult(struct {
		*schema.ExtractionResult
		ScreenshotPath string `json:"screenshotPath,omitempty"`
	}{res, shotPath})
}

func (s *Server) writeScreenshot(data []byte, path string) (string, error) {
	if path == "" {
		f, err := os.CreateTemp("", "designparity-*.png")
		if err != nil {
			return "", fmt.Errorf("create screenshot file: %w", err)
		}
		path = f.Name()
		f.Close()
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	s.log.Debug("screenshot written", slog.String("path", path), slog.Int("bytes", len(data)))
	return path, nil
}

func (s *Server) handleCompareScreenshots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.pixels == nil {
		return mcp.NewToolResultError("screenshot comparison is not available in this deployment"), nil
	}
	pathA, err := request.RequireString("imageA")
	if err != nil || strings.TrimSpace(pathA) == "" {
		return mcp.NewToolResultError("imageA is required"), nil
	}
	pathB, err := request.RequireString("imageB")
	if err != nil || strings.TrimSpace(pathB) == "" {
		return mcp.NewToolResultError("imageB is required"), nil
	}

	opts := pixeldiff.DefaultOptions()
	if v := request.GetInt("threshold", -1); v >= 0 {
		opts.Threshold = v
	}
	switch policy := strings.ToLower(request.GetString("dimensionPolicy", "")); policy {
	case "":
	case string(pixeldiff.PolicyReject):
		opts.DimensionPolicy = pixeldiff.PolicyReject
	case string(pixeldiff.PolicyOverlap):
		opts.DimensionPolicy = pixeldiff.PolicyOverlap
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown dimensionPolicy %q: use overlap or reject", policy)), nil
	}
	diffPath := request.GetString("diffImagePath", "")
	opts.IncludePixelDiff = diffPath != ""

	srcA, err := pixeldiff.Open(pathA)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer srcA.Close()
	srcB, err := pixeldiff.Open(pathB)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer srcB.Close()

	result, err := s.pixels.Compare(srcA.Data, srcB.Data, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	wrotePath := ""
	if opts.IncludePixelDiff && len(result.DiffImage) > 0 {
		if err := os.WriteFile(diffPath, result.DiffImage, 0644); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("write diff image: %v", err)), nil
		}
		wrotePath = diffPath
	}

	return jsonResult(struct {
		*pixeldiff.Result
		DiffImagePath string `json:"diffImagePath,omitempty"`
	}{result, wrotePath})
}

func (s *Server) handleProviderStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.resolver == nil {
		return mcp.NewToolResultError("no provider resolver configured"), nil
	}
	av := s.resolver.Provider(ctx)
	payload := map[string]any{
		"availability": av,
		"localMode":    s.resolver.LocalMode(),
	}
	if mode, err := s.resolver.Resolve(ctx, provider.DefaultOptions()); err == nil {
		payload["resolvedMode"] = string(mode)
	}
	return jsonResult(payload)
}
