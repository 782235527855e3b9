package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/texsearch/internal/indexer"
	"github.com/dshills/texsearch/internal/searcher"
	"github.com/dshills/texsearch/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeCorpusNotFound     = -32001 // Path does not contain section files
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeSearchTimeout      = -32003 // Search exceeded its deadline
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxReportedErrors bounds the per-file errors echoed back to the client
const maxReportedErrors = 5

// handleIndexCorpus handles the index_corpus tool invocation
func (s *Server) handleIndexCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path := getStringDefault(args, "path", "")
	if path == "" {
		path = s.svc.Config.Indexer.Root
	} else if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}

	if err := s.validateCorpus(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrNoSectionFiles) {
			code = ErrorCodeCorpusNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	force := getBoolDefault(args, "force", false)

	stats, err := s.svc.Reindex(ctx, path, indexer.Options{Force: force})
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, err.Error(), nil)
	}
	if err != nil {
		data := map[string]interface{}{"error": err.Error()}
		if stats != nil {
			data["files_indexed"] = stats.FilesIndexed
		}
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", data)
	}

	response := map[string]interface{}{
		"indexed":         true,
		"path":            path,
		"force":           force,
		"files_found":     stats.FilesDiscovered,
		"files_indexed":   stats.FilesIndexed,
		"files_skipped":   stats.FilesSkipped,
		"files_failed":    stats.FilesFailed,
		"chunks_upserted": stats.ChunksUpserted,
		"batches_flushed": stats.BatchesFlushed,
		"pruned":          len(stats.Pruned),
		"duration_ms":     stats.Duration.Milliseconds(),
	}

	if n := len(stats.ErrorMessages); n > 0 {
		if n > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = n
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchSections handles the search_sections tool invocation
func (s *Server) handleSearchSections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", s.svc.Config.Search.Limit)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	threshold := getFloatDefault(args, "score_threshold", s.svc.Config.Search.ScoreThreshold)
	if threshold < 0 || threshold > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "score_threshold must be between 0 and 1", map[string]interface{}{
			"param": "score_threshold",
			"value": threshold,
		})
	}

	resp, err := s.svc.Searcher.Search(ctx, searcher.SearchRequest{
		Query:          query,
		Limit:          limit,
		ScoreThreshold: &threshold,
		ChapterFilter:  getStringDefault(args, "chapter_filter", ""),
		SourceFilter:   getStringDefault(args, "source_filter", ""),
		UseCache:       true,
	})
	if errors.Is(err, searcher.ErrTimeout) {
		return nil, newMCPError(ErrorCodeSearchTimeout, err.Error(), nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"id":            strconv.FormatUint(r.ID, 10),
			"score":         r.Score,
			"title":         r.Payload.Title,
			"level":         r.Payload.Level,
			"parent_titles": r.Payload.AncestorTitles,
			"source":        r.Payload.SourcePath,
			"content":       searcher.CleanContent(r.Payload.Content),
		})
	}

	response := map[string]interface{}{
		"query":         query,
		"results":       results,
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := s.svc.Config
	running := s.svc.Indexer.Running()

	response := map[string]interface{}{
		"collection":           cfg.Collection.Name,
		"vector_store":         cfg.VectorStore.Type,
		"corpus_root":          cfg.Indexer.Root,
		"indexing_in_progress": running,
		"embedder": map[string]interface{}{
			"provider":  s.svc.Embedder.Provider(),
			"model":     s.svc.Embedder.Model(),
			"dimension": s.svc.Embedder.Dimension(),
		},
		"distributed_lock": s.svc.Lock != nil,
	}

	count, err := s.svc.Store.Count(ctx)
	if err != nil {
		response["chunks_count"] = 0
		response["store_error"] = err.Error()
	} else {
		response["chunks_count"] = count
	}

	tracked, err := s.svc.State.Stored(ctx)
	if err != nil {
		response["files_tracked"] = s.svc.State.Len()
		response["bookkeeping_error"] = err.Error()
	} else {
		response["files_tracked"] = tracked
	}

	if db, ok := s.svc.Store.(storage.Storage); ok {
		status, err := db.GetStatus(ctx)
		if err != nil {
			response["database_error"] = err.Error()
		} else {
			response["database"] = map[string]interface{}{
				"schema_version":     status.SchemaVersion,
				"build_mode":         status.BuildMode,
				"vector_extension":   status.VectorExtension,
				"size_mb":            status.SizeMB,
				"dimension":          status.Dimension,
				"sources_count":      status.SourcesCount,
				"fingerprints_count": status.FingerprintsCnt,
			}
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListChapters handles the list_chapters tool invocation
func (s *Server) handleListChapters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cat, err := s.svc.Searcher.Catalog(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list chapters", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"chapters": nonNil(cat.Chapters),
		"sources":  nonNil(cat.Sources),
		"statistics": map[string]interface{}{
			"documents": cat.Stats.DocumentCount,
			"chapters":  cat.Stats.ChapterCount,
			"sections":  cat.Stats.SectionCount,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// arguments returns the tool arguments; a call without arguments yields an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateCorpus checks that path is a readable directory holding section files
func (s *Server) validateCorpus(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	files, err := s.svc.Indexer.Discover(path)
	if err != nil {
		return ErrPathNotReadable
	}
	if len(files) == 0 {
		return ErrNoSectionFiles
	}
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNoSectionFiles  = errors.New("directory does not contain section files")
)
