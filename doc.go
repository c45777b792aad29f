// reflectgo - a bounded self-critique loop for LLM agents in Go
//
// reflectgo implements the reflection pattern: an agent generates a candidate
// answer, a judge critiques it, and the feedback drives a revision, repeating
// until the judge is satisfied or an iteration budget runs out.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/smallnest/reflectgo
//
// Basic example:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/smallnest/reflectgo/reflection"
//		"github.com/tmc/langchaingo/llms/openai"
//	)
//
//	func main() {
//		llm, _ := openai.New()
//
//		generate, _ := reflection.NewLLMGenerator(reflection.GeneratorConfig{Model: llm})
//		critique, _ := reflection.NewLLMCritic(reflection.CriticConfig{Model: llm})
//
//		result, _ := reflection.RunReflectionLoop(
//			context.Background(),
//			[]reflection.Message{reflection.UserMessage("Write a function that adds two numbers")},
//			generate,
//			critique,
//			3, // max iterations
//		)
//
//		fmt.Println(result.FinalAnswer)
//	}
//
// # Packages
//
//   - reflection: the loop controller, message model, and LLM collaborators
//   - graph: the sequential state-graph engine the loop runs on
//   - adapter: go-openai backed collaborators
//   - store (+ memory, sqlite, redis, postgres): session persistence
//   - log: logging facade with a golog backend
package reflectgo // import "github.com/smallnest/reflectgo"
