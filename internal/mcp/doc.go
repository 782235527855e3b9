// Package mcp implements the Model Context Protocol (MCP) server for texsearch.
//
// The MCP server exposes four tools to AI assistants:
//   - index_corpus: Index a directory of section files
//   - search_sections: Semantic search over indexed sections
//   - get_status: Collection size and collaborator configuration
//   - list_chapters: Chapter titles, sources and corpus statistics
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started with:
//
//	texsearch mcp
//
// It reads MCP messages from stdin and writes responses to stdout. Logs go to
// stderr.
//
// # Tool: index_corpus
//
//	Request:
//	{
//	  "name": "index_corpus",
//	  "arguments": {
//	    "path": "/data/thesis/output_20240101_120000",
//	    "force": false
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "files_found": 12,
//	  "files_indexed": 3,
//	  "files_skipped": 9,
//	  "files_failed": 0,
//	  "chunks_upserted": 141,
//	  "duration_ms": 5210
//	}
//
// path defaults to the configured corpus root. Files whose fingerprint is
// unchanged are skipped unless force is set. A second call while a run is
// active fails with code -32002.
//
// # Tool: search_sections
//
//	Request:
//	{
//	  "name": "search_sections",
//	  "arguments": {
//	    "query": "boundary layer separation",
//	    "limit": 5,
//	    "score_threshold": 0.5,
//	    "chapter_filter": "Methods"
//	  }
//	}
//
// Results are ordered by descending cosine similarity and carry the section
// title, level, ancestor titles, source path and cleaned content.
//
// # Error Codes
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  path holds no section files
//	-32002  indexing already in progress
//	-32003  search timed out
//	-32004  empty query
package mcp
