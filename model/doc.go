// Package model defines the provider-agnostic abstractions for interacting
// with language models.
//
// Flows build a Request (instructions, conversation contents, tool
// definitions) and consume the Response stream of a Model. Providers live in
// sub-packages: gemini (google.golang.org/genai), openai and anthropic.
// MockModel replays scripted responses for tests.
package model
