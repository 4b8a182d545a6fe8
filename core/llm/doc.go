// Package llm is the model invocation façade used by pipeline stages.
//
// A stage describes one request pattern with a [Call]: a prompt template, a
// [ModelConfig], the name of the extractor that parses each answer, one
// variables map per prompt and a sampling count. [Invoker.Call] renders every
// prompt, draws the samples and returns one slice of extracted results per
// prompt.
//
// [ProviderInvoker] is the production implementation. It sends chat requests
// through a [Provider] wrapped in a [Middleware] chain (retry, timeout,
// observation) and fans samples out concurrently with a bounded errgroup.
// The façade never retries on its own; retries are a middleware concern.
package llm
