// Package converter turns LaTeX sources into plain text ready for the
// section splitter.
//
// Conversion is a Chain of strategies tried in order until one succeeds:
//
//	chain := converter.DefaultChain()      // pandoc when on PATH, then regex
//	name, err := chain.Convert(ctx, "ch1.tex", "out/ch1.txt")
//
// ConvertTree walks a directory for .tex files, mirrors their relative
// paths into a fresh output_YYYYMMDD_HHMMSS directory, converts each file
// and writes the section JSON next to every converted text file.
package converter
