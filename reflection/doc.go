// Package reflection implements a bounded generate -> critique -> revise
// loop for LLM agents.
//
// A Loop composes two injected collaborators: a generation step that appends
// a candidate assistant message to the conversation, and a critique step
// that returns a structured pass/fail verdict with feedback. On failure the
// feedback is re-injected as a user message and the generation step runs
// again; on success the candidate is marked reflected and returned as the
// final answer. A caller-supplied iteration budget (default 3) bounds the
// cycle, and running out of budget yields the last candidate as a
// best-effort answer rather than an error.
//
// The package ships LLM-backed collaborators built on langchaingo
// (NewLLMGenerator, NewLLMCritic, NewCodeCritic); any function matching
// GenerateFunc or CritiqueFunc works in their place. The loop itself never
// talks to a model provider.
package reflection
