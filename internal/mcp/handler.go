package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hyperifyio/notionposts/internal/posts"
)

const Version = "0.1.0"

// PostSource yields the current post list.
type PostSource interface {
	Posts(ctx context.Context) []posts.Post
}

type ListPostsRequest struct {
	Limit int    `json:"limit"` // Maximum number of posts, 0 for all
	Tag   string `json:"tag"`   // Only posts carrying this tag
}

type ListPostsResponse struct {
	Posts []posts.Post `json:"posts"`
	Total int          `json:"total"` // Matches before the limit was applied
}

type GetPostRequest struct {
	Slug string `json:"slug"` // Slug or page ID of the post
}

type GetPostResponse struct {
	Post *posts.Post `json:"post"`
}

// NewServer creates an MCP server exposing the listPosts and getPost tools.
func NewServer(source PostSource) *server.MCPServer {
	s := server.NewMCPServer(
		"Notion Posts MCP",
		Version,
		server.WithToolCapabilities(false),
	)

	listTool := mcp.NewTool("listPosts",
		mcp.WithDescription("List published blog posts, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of posts to return; 0 returns all"),
		),
		mcp.WithString("tag",
			mcp.Description("Only return posts carrying this tag (case-insensitive)"),
		),
	)
	s.AddTool(listTool, mcp.NewTypedToolHandler(getListPostsHandler(source)))

	getTool := mcp.NewTool("getPost",
		mcp.WithDescription("Get a single published post by slug or page ID"),
		mcp.WithString("slug",
			mcp.Required(),
			mcp.Description("The post slug as used in /<slug> links, or its page ID"),
		),
	)
	s.AddTool(getTool, mcp.NewTypedToolHandler(getGetPostHandler(source)))

	return s
}

func getListPostsHandler(source PostSource) func(ctx context.Context, request mcp.CallToolRequest, args ListPostsRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args ListPostsRequest) (*mcp.CallToolResult, error) {
		if args.Limit < 0 {
			return mcp.NewToolResultError("limit must not be negative"), nil
		}
		tag := strings.TrimSpace(args.Tag)
		matched := make([]posts.Post, 0)
		for _, p := range source.Posts(ctx) {
			if tag == "" || hasTag(p, tag) {
				matched = append(matched, p)
			}
		}
		response := ListPostsResponse{Posts: matched, Total: len(matched)}
		if args.Limit > 0 && len(matched) > args.Limit {
			response.Posts = matched[:args.Limit]
		}
		return jsonResult(response)
	}
}

func getGetPostHandler(source PostSource) func(ctx context.Context, request mcp.CallToolRequest, args GetPostRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args GetPostRequest) (*mcp.CallToolResult, error) {
		want := strings.Trim(strings.TrimSpace(args.Slug), "/")
		if want == "" {
			return mcp.NewToolResultError("slug is required"), nil
		}
		for _, p := range source.Posts(ctx) {
			if p.Slug == want || strings.EqualFold(strings.ReplaceAll(p.ID, "-", ""), strings.ReplaceAll(want, "-", "")) {
				p := p
				return jsonResult(GetPostResponse{Post: &p})
			}
		}
		return mcp.NewToolResultError(fmt.Sprintf("post %q not found", want)), nil
	}
}

func hasTag(p posts.Post, tag string) bool {
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
