// Package openai implements the ai.Embedder contract against
// OpenAI-compatible embedding APIs, including local servers such as Ollama
// and LM Studio. Provider errors are classified into the pipeline's
// transient/fatal taxonomy before they leave this package.
package openai
