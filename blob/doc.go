// Package blob defines the object store boundary for raw document bytes.
//
// The pipeline never receives raw bytes directly: the upload collaborator
// places them in a Store and hands the pipeline a (bucket, key) reference.
// The extraction stage pulls bytes by reference and spools extracted text
// back into the same store so that later stages can stream it.
package blob
