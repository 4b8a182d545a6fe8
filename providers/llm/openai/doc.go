// Package openai sends chat requests to OpenAI-compatible /chat/completions
// endpoints. Besides OpenAI itself this covers Ollama, vLLM, OpenRouter and
// most self-hosted gateways.
//
// [New] reads OPENAI_API_KEY and OPENAI_API_BASE_URL; options given to it
// take precedence.
package openai
