// idealistaplus-mcp exposes the listing API as an MCP stdio server so agent
// clients can fetch property records through a single tool call.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// propertyResponse mirrors the listing API response model.
type propertyResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("IPLUS_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:3001"
	}
	apiKey := os.Getenv("IPLUS_API_KEY")

	s := server.NewMCPServer(
		"idealistaplus",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	fetchTool := mcp.NewTool("fetch_property",
		mcp.WithDescription("Fetch a structured record for an Idealista property listing. A CAPTCHA may need to be solved manually in the service's browser window; on CHALLENGE_TIMEOUT, solve it and retry."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The listing URL, e.g. https://www.idealista.com/inmueble/12345678/"),
		),
	)
	s.AddTool(fetchTool, handleFetchProperty(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleFetchProperty(apiURL, apiKey string) server.ToolHandlerFunc {
	// Generous timeout: a single fetch may wait out a manual CAPTCHA solve.
	client := &http.Client{Timeout: 5 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		body, err := json.Marshal(map[string]string{"url": url})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/property", bytes.NewReader(body))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			httpReq.Header.Set("X-API-Key", apiKey)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var propResp propertyResponse
		if err := json.Unmarshal(respBody, &propResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !propResp.Success {
			errMsg := "fetch failed"
			if propResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", propResp.Error.Code, propResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, propResp.Data, "", "  "); err != nil {
			pretty.Write(propResp.Data)
		}

		return mcp.NewToolResultText(pretty.String()), nil
	}
}
