// Package search answers natural-language queries over stored chunks.
//
// A query is embedded with the same model as the documents and matched
// against chunk vectors by cosine similarity. Vectors are normalized at
// write time, so similarity reduces to a dot product. Results carry the
// matched chunk together with its source document.
package search
