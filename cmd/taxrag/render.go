package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/taxrag/internal/chunker"
	"github.com/fyrsmithlabs/taxrag/internal/crawler"
	"github.com/fyrsmithlabs/taxrag/internal/index"
	"github.com/fyrsmithlabs/taxrag/internal/rag"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	answerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// renderAnswer prints the answer and its numbered sources.
func renderAnswer(w io.Writer, ans *rag.Answer, plain bool) {
	render := func(s lipgloss.Style, text string) string {
		if plain {
			return text
		}
		return s.Render(text)
	}

	fmt.Fprintln(w, render(headerStyle, "❓ "+ans.Query))
	fmt.Fprintln(w)
	body := render(answerStyle, ans.Answer)
	if ans.Failed() {
		body = render(errorStyle, ans.Answer)
	}
	fmt.Fprintln(w, body)

	if len(ans.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, render(headerStyle, "📚 წყაროები:"))
	for _, src := range ans.Sources {
		fmt.Fprintf(w, "%s %s\n", render(labelStyle, fmt.Sprintf("[%d]", src.Number)), src.Title)
		fmt.Fprintf(w, "    %s\n", render(dimStyle, src.URL))
	}
}

func printCrawlStats(w io.Writer, res *crawler.Result, dir string) {
	fmt.Fprintf(w, "✅ Crawl complete: %d pages saved (%d visited, %d failed) in %s\n",
		len(res.Pages), res.Visited, res.Failed, dir)
}

func printChunkStats(w io.Writer, pages int, s chunker.Stats, path string) {
	fmt.Fprintf(w, "✅ Chunked %d pages into %s\n", pages, path)
	fmt.Fprintf(w, "   Total chunks:       %d\n", s.TotalChunks)
	fmt.Fprintf(w, "   Total characters:   %d\n", s.TotalChars)
	fmt.Fprintf(w, "   Average chunk size: %d\n", s.AverageChars)
}

func printIndexStats(w io.Writer, s *index.Stats) {
	if s.Skipped {
		fmt.Fprintf(w, "Index %s already has %d documents; use --rebuild to replace it.\n", s.Collection, s.Documents)
		return
	}
	fmt.Fprintf(w, "✅ Indexed %d documents into %s (%d batches)\n", s.Documents, s.Collection, s.Batches)
}
