package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/matsen/labpubs/internal/model"
)

const (
	// ListTitleMaxLen truncates titles in list output.
	ListTitleMaxLen = 70

	// ListAuthorsMax bounds author names shown per work.
	ListAuthorsMax = 3
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// printWorksHuman prints works one per line with authors and year.
func printWorksHuman(works []model.Work) {
	for i, w := range works {
		marker := " "
		if w.Verified {
			marker = "*"
		}
		fmt.Printf("%d.%s %s\n", i+1, marker, truncateString(w.Title, ListTitleMaxLen))
		line := formatAuthorsShort(w.Authors, ListAuthorsMax)
		if w.Year > 0 {
			line = fmt.Sprintf("%s (%d)", line, w.Year)
		}
		if w.Venue != "" {
			line += ", " + w.Venue
		}
		fmt.Printf("   %s\n", line)
		if w.DOI != "" {
			fmt.Printf("   doi:%s\n", w.DOI)
		}
		fmt.Println()
	}
}

// formatAuthorsShort formats authors with "et al." past maxCount.
func formatAuthorsShort(authors []model.Author, maxCount int) string {
	if len(authors) == 0 {
		return ""
	}
	var names []string
	for i, a := range authors {
		if i >= maxCount {
			names = append(names, "et al.")
			break
		}
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
