// Package httpapi serves the search API consumed by the thesis navigator
// front end.
//
// Routes:
//
//	GET  /              health and collection list
//	GET  /chapters      chapter titles and source names
//	GET  /stats         document, chapter and section counts
//	POST /search        paginated semantic search
//	POST /rewrite-text  LLM rewrite of a highlighted passage
//
// Every response carries an X-Request-ID header and permissive CORS headers.
package httpapi
