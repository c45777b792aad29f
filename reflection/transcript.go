package reflection

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Transcript renders a finished run as a markdown document, one section per
// conversation turn.
func Transcript(result *Result) string {
	var sb strings.Builder

	sb.WriteString("# Reflection transcript\n\n")
	fmt.Fprintf(&sb, "- Outcome: %s\n", result.Outcome)
	fmt.Fprintf(&sb, "- Iterations used: %d\n\n", result.IterationsUsed)

	for i, msg := range result.Messages {
		fmt.Fprintf(&sb, "## %d. %s\n\n", i+1, msg.Role)
		if msg.Reflected() {
			sb.WriteString("*(accepted)*\n\n")
		}
		sb.WriteString(msg.Text())
		sb.WriteString("\n\n")
	}

	if result.FinalAnswer != "" {
		sb.WriteString("## Final answer\n\n")
		sb.WriteString(result.FinalAnswer)
		sb.WriteString("\n")
	}

	return sb.String()
}

// TranscriptHTML renders the transcript as sanitized HTML. Model output is
// untrusted, so the rendered markup goes through a bluemonday UGC policy
// before it is returned.
func TranscriptHTML(result *Result) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})

	unsafe := markdown.ToHTML([]byte(Transcript(result)), p, renderer)
	return bluemonday.UGCPolicy().SanitizeBytes(unsafe)
}
