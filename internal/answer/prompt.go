// Package answer generates the grounded answer from an assembled
// context: prompt construction, LLM call with bounded retries, and the
// fixed response for empty context.
package answer

import (
	"fmt"
	"strings"
)

// InsufficientInfoAnswer is returned verbatim when retrieval produced no
// usable context. The LLM is never called in that case.
func InsufficientInfoAnswer(question string) string {
	return fmt.Sprintf("I couldn't find relevant information in the available earnings call transcripts "+
		"to answer your question: %q. This could be because:\n\n"+
		"1. The topic isn't covered in the indexed transcripts\n"+
		"2. The information might be outside the covered companies or time period\n"+
		"3. The question might need to be rephrased to match the content better\n\n"+
		"Try refining your question or asking about topics commonly discussed in earnings calls "+
		"such as revenue, growth, market conditions, or business strategy.", question)
}

// buildPrompt constructs the grounded analyst prompt. The context block
// carries numbered excerpts; the instructions pin the answer to them.
func buildPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("You are a financial analyst assistant specialized in analyzing earnings call transcripts. ")
	sb.WriteString("Provide accurate, insightful answers based on the provided transcript excerpts.\n\n")
	sb.WriteString("CONTEXT FROM EARNINGS CALL TRANSCRIPTS:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nQUESTION: ")
	sb.WriteString(question)
	sb.WriteString("\n\nINSTRUCTIONS:\n")
	sb.WriteString("1. Base your answer only on the provided transcript excerpts\n")
	sb.WriteString("2. Attribute specific information to its company and time period\n")
	sb.WriteString("3. For questions about trends, compare across periods or companies\n")
	sb.WriteString("4. If the excerpts do not fully answer the question, acknowledge the gap\n")
	sb.WriteString("5. Use financial terminology appropriately and explain complex concepts when needed\n")
	sb.WriteString("6. Reference excerpts by their bracketed number, e.g. [2]\n")
	sb.WriteString("\nRESPONSE:")
	return sb.String()
}
