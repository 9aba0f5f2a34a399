package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

func compareDesignsTool() mcp.Tool {
	return mcp.NewTool(
		"compare_designs",
		mcp.WithDescription("Compare a Figma design against a live web page: matched elements, categorized deviations, and an overall similarity score"),
		mcp.WithString("figmaUrl",
			mcp.Description("Figma file or frame share URL"),
			mcp.Required(),
		),
		mcp.WithString("webUrl",
			mcp.Description("URL of the live page to compare against"),
			mcp.Required(),
		),
		mcp.WithString("figmaToken",
			mcp.Description("Figma access token for this call, overriding environment and OAuth tokens"),
		),
		mcp.WithString("mode",
			mcp.Description("Figma connection mode override: api, desktop, oauth, or proxy"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum composite similarity for two elements to match, 0 to 1 (default from settings)"),
		),
		mcp.WithNumber("colorTolerance",
			mcp.Description("Per-channel color difference treated as equal, 0 to 255 (default from settings)"),
		),
		mcp.WithBoolean("noCache",
			mcp.Description("Bypass the result cache and re-run both extractions"),
		),
	)
}

func extractFigmaTool() mcp.Tool {
	return mcp.NewTool(
		"extract_figma",
		mcp.WithDescription("Extract the normalized element tree and design tokens from a Figma document"),
		mcp.WithString("figmaUrl",
			mcp.Description("Figma file or frame share URL"),
			mcp.Required(),
		),
		mcp.WithString("figmaToken",
			mcp.Description("Figma access token for this call"),
		),
		mcp.WithString("mode",
			mcp.Description("Figma connection mode override: api, desktop, oauth, or proxy"),
		),
	)
}

func extractWebTool() mcp.Tool {
	return mcp.NewTool(
		"extract_web",
		mcp.WithDescription("Extract the normalized element tree and style tokens from a live web page"),
		mcp.WithString("url",
			mcp.Description("URL of the page to extract"),
			mcp.Required(),
		),
		mcp.WithBoolean("screenshot",
			mcp.Description("Capture a screenshot alongside the element tree"),
		),
		mcp.WithBoolean("fullPage",
			mcp.Description("Extend the screenshot past the viewport"),
		),
		mcp.WithString("screenshotPath",
			mcp.Description("File path for the captured screenshot (default: a temp file)"),
		),
		mcp.WithString("username",
			mcp.Description("Username for form login before extraction"),
		),
		mcp.WithString("password",
			mcp.Description("Password for form login before extraction"),
		),
	)
}

func compareScreenshotsTool() mcp.Tool {
	return mcp.NewTool(
		"compare_screenshots",
		mcp.WithDescription("Pixel-compare two screenshot files (PNG or JPEG) and report similarity"),
		mcp.WithString("imageA",
			mcp.Description("Path to the first image"),
			mcp.Required(),
		),
		mcp.WithString("imageB",
			mcp.Description("Path to the second image"),
			mcp.Required(),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Per-channel difference, 0 to 255, below which two pixels still match (default 10)"),
		),
		mcp.WithString("dimensionPolicy",
			mcp.Description("How to treat mismatched dimensions: overlap (default) or reject"),
		),
		mcp.WithString("diffImagePath",
			mcp.Description("File path to write a rendered diff image to; omitted means no diff image"),
		),
	)
}

func providerStatusTool() mcp.Tool {
	return mcp.NewTool(
		"provider_status",
		mcp.WithDescription("Report which Figma connection paths are currently available and which mode would be used"),
	)
}
