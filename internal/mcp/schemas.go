package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexCorpusTool returns the tool definition for index_corpus
func indexCorpusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_corpus",
		Description: "Index a directory of structured section files (*.json) produced by the converter",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the corpus directory. Defaults to the configured indexer root",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-index every file ignoring fingerprints (full rebuild)",
					"default":     false,
				},
			},
		},
	}
}

// searchSectionsTool returns the tool definition for search_sections
func searchSectionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_sections",
		Description: "Semantic search over indexed thesis sections",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     5,
					"minimum":     1,
					"maximum":     100,
				},
				"score_threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity (0.0-1.0)",
					"default":     0.5,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"chapter_filter": map[string]interface{}{
					"type":        "string",
					"description": "Only return sections below this chapter or section title",
				},
				"source_filter": map[string]interface{}{
					"type":        "string",
					"description": "Only return sections from this source file path",
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report collection size, tracked files and collaborator configuration",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// listChaptersTool returns the tool definition for list_chapters
func listChaptersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_chapters",
		Description: "List chapter titles and source documents present in the collection",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
