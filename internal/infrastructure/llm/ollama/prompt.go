package ollama

import (
	"fmt"
	"strings"

	"github.com/lmoreau/paperquery/internal/core/domain"
	"github.com/lmoreau/paperquery/internal/core/ports"
)

func buildAnswerPrompt(question string, chunks []domain.Chunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf("[Source %d] %s\n%s\n\n",
			idx+1, chunkHeading(chunk), chunk.Text))
	}

	return fmt.Sprintf(`You are an academic research assistant. Answer the question using ONLY the document excerpts below.
Cite sources as [Source N]. If the excerpts do not contain the answer, say so directly. Be precise and concise.

Excerpts:
%s
Question: %s

Answer, citing the relevant sources as [Source N].`, contextBuilder.String(), question)
}

func buildSynthesisPrompt(topic string, groups []ports.DocumentGroup, section domain.Section) string {
	var contextBuilder strings.Builder
	for idx, group := range groups {
		contextBuilder.WriteString(fmt.Sprintf("Document %d: %s", idx+1, group.Title))
		if group.Authors != "" {
			contextBuilder.WriteString(" - " + group.Authors)
		}
		if group.Year != 0 {
			contextBuilder.WriteString(fmt.Sprintf(" (%d)", group.Year))
		}
		contextBuilder.WriteString("\n")
		for _, chunk := range group.Chunks {
			contextBuilder.WriteString(chunk.Text)
			contextBuilder.WriteString("\n")
		}
		contextBuilder.WriteString("\n")
	}

	focus := ""
	if section != "" {
		focus = fmt.Sprintf("\nFocus on material from the %s sections of each document.", section)
	}

	return fmt.Sprintf(`You are writing a literature synthesis on: "%s"
Below are excerpts from %d documents, grouped per document.%s

Produce a structured synthesis: main themes across documents, points of agreement, points of divergence, and open questions. Reference documents by number (Document N).

%s`, topic, len(groups), focus, contextBuilder.String())
}

func buildComparisonPrompt(topic string, authors []string, byAuthor map[string][]domain.Chunk) string {
	var contextBuilder strings.Builder
	for _, author := range authors {
		chunks, ok := byAuthor[author]
		if !ok {
			continue
		}
		contextBuilder.WriteString(fmt.Sprintf("=== Work of %s ===\n", author))
		for _, chunk := range chunks {
			contextBuilder.WriteString(fmt.Sprintf("(%s)\n%s\n\n", chunkHeading(chunk), chunk.Text))
		}
	}

	return fmt.Sprintf(`Compare the work of the following authors on: "%s"
Authors: %s

Base the comparison ONLY on the excerpts below. Cover: each author's approach, points of convergence, points of divergence, and what remains unresolved between them.

%s`, topic, strings.Join(authors, ", "), contextBuilder.String())
}

func chunkHeading(chunk domain.Chunk) string {
	parts := []string{chunk.Title}
	if chunk.Authors != "" {
		parts = append(parts, chunk.Authors)
	}
	if chunk.Year != 0 {
		parts = append(parts, fmt.Sprintf("%d", chunk.Year))
	}
	if chunk.PageNumber != 0 {
		parts = append(parts, fmt.Sprintf("p. %d", chunk.PageNumber))
	}
	if chunk.Section != "" {
		parts = append(parts, string(chunk.Section))
	}
	return strings.Join(parts, ", ")
}
