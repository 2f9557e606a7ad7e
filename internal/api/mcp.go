package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kisanmitra/kisanmitra/internal/pipeline"
	"github.com/kisanmitra/kisanmitra/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Orchestrator Asker
	Store        *storage.Store
}

// NewMCPServer creates an MCP server exposing the advisory pipeline as tools,
// so agent hosts can ask questions and file feedback on behalf of a farmer.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"kisanmitra",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("KisanMitra — agricultural advisory for farmer questions with answer audio and feedback."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_advisor",
			mcp.WithDescription("Ask the agricultural advisor a question and receive an answer with provenance."),
			mcp.WithString("question", mcp.Description("The farmer's question"), mcp.Required()),
			mcp.WithString("language", mcp.Description("Language tag for the answer (e.g. hi, ta, en)"), mcp.Required()),
			mcp.WithString("crop", mcp.Description("Crop context (defaults to wheat)")),
		),
		mcpAskAdvisor(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Record a rating and optional comment for a previous advisory interaction."),
			mcp.WithString("interaction_id", mcp.Description("Identifier returned by ask_advisor"), mcp.Required()),
			mcp.WithNumber("rating", mcp.Description("Integer rating of the answer"), mcp.Required()),
			mcp.WithString("comment", mcp.Description("Optional free-text comment")),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"advisory://recent",
			"Recent Interactions",
			mcp.WithResourceDescription("Last 10 recorded advisory interactions (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAskAdvisor(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		language, err := req.RequireString("language")
		if err != nil {
			return mcpError("language is required"), nil
		}
		crop := req.GetString("crop", "")

		result, err := deps.Orchestrator.Ask(ctx, pipeline.AskRequest{
			Language: language,
			Crop:     crop,
			Question: question,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		interactionID, err := req.RequireString("interaction_id")
		if err != nil {
			return mcpError("interaction_id is required"), nil
		}
		rating, err := req.RequireInt("rating")
		if err != nil {
			return mcpError("rating is required and must be an integer"), nil
		}

		exists, err := deps.Store.InteractionExists(interactionID)
		if err != nil {
			return mcpError(fmt.Sprintf("checking interaction: %v", err)), nil
		}
		if !exists {
			return mcpError(fmt.Sprintf("interaction %s not found", interactionID)), nil
		}

		f := storage.Feedback{
			ID:            uuid.NewString(),
			InteractionID: interactionID,
			Rating:        rating,
		}
		if comment := req.GetString("comment", ""); comment != "" {
			f.Comment = &comment
		}
		if err := deps.Store.SaveFeedback(f); err != nil {
			return mcpError(fmt.Sprintf("saving feedback: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Recorded feedback %s", f.ID)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.ListInteractions(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Language  string `json:"language"`
			Crop      string `json:"crop"`
			Question  string `json:"question"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			question := ""
			if ix.Transcript != nil {
				question = *ix.Transcript
			} else if ix.Question != nil {
				question = *ix.Question
			}
			if utf8.RuneCountInString(question) > 200 {
				runes := []rune(question)
				question = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Language:  ix.Language,
				Crop:      ix.Crop,
				Question:  question,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
