// Package scope decides the fate of every URL a crawl's browsers request.
//
// A Policy is an immutable snapshot taken from a model.Target when a crawl
// session starts. Classify evaluates a URL against it and returns exactly
// one model.ResourceState. Classification only looks at the request URL,
// never at response content, and is safe to call from any number of
// goroutines against the same Policy.
//
// The package also provides regex-backed implementations of model.Context
// and model.ScopeDefinition that are configured from the YAML file.
package scope
