// Package types provides shared type definitions for texsearch.
//
// This package defines the domain types exchanged between the indexing
// pipeline, the vector store adapters and the query side.
//
// # Core Types
//
// Section is one node of a parsed document hierarchy, as produced by the
// heading splitter and consumed by the indexer:
//
//	root := types.Section{
//	    Title:   "Ch1",
//	    Level:   1,
//	    Content: "intro",
//	    Sections: []types.Section{
//	        {Title: "Sec1.1", Level: 2, Content: "body"},
//	    },
//	}
//
// Chunk is the unit written to the vector store. Its Payload carries the
// fields the query side filters on (SourcePath, AncestorTitles):
//
//	chunk := types.Chunk{
//	    ID:     identity.DeriveID("paper", []string{"Ch1"}, "Sec1.1"),
//	    Vector: vec,
//	    Payload: types.Payload{
//	        Title:          "Sec1.1",
//	        SourcePath:     "corpus/paper.json",
//	        AncestorTitles: []string{"Ch1"},
//	        Depth:          1,
//	    },
//	}
//
// Fingerprint identifies the state of a source file on disk (modification
// time, size, content hash) and is what the bookkeeping store persists.
//
// # Errors
//
// FileError and RemoteError classify per-file failures. ErrBookkeeping marks
// failures to persist fingerprints, which abort an indexing run.
package types
