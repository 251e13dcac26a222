// Package doctool provides a tool that extracts plain text from PDF documents
// on the local filesystem.
package doctool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/ledongthuc/pdf"

	"github.com/skosovsky/dispatchy"
)

// Args identify the document to read.
type Args struct {
	Path     string `json:"path" description:"Filesystem path of the PDF document"`
	MaxChars int    `json:"max_chars,omitempty" description:"Truncate extracted text to this many characters (0 means no limit)"`
}

// Result carries the extracted text.
type Result struct {
	Path      string `json:"path"`
	Pages     int    `json:"pages" description:"Number of pages in the document"`
	Text      string `json:"text" description:"Extracted plain text"`
	Truncated bool   `json:"truncated,omitempty" description:"True when the text was cut at max_chars"`
}

// ExtractText reads the PDF at args.Path and returns its plain text.
// The underlying parser panics on some malformed files; the deferred recover
// turns those into ordinary errors.
func ExtractText(_ context.Context, args Args) (res Result, err error) {
	if args.Path == "" {
		return Result{}, &dispatchy.ClientError{Reason: "path must not be empty"}
	}
	if args.MaxChars < 0 {
		return Result{}, &dispatchy.ClientError{
			Reason: fmt.Sprintf("max_chars must be non-negative, got %d", args.MaxChars),
		}
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("parse pdf %s: %v", args.Path, p)
		}
	}()

	f, reader, err := pdf.Open(args.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, &dispatchy.ClientError{Reason: "no such document: " + args.Path}
		}
		return Result{}, fmt.Errorf("open pdf %s: %w", args.Path, err)
	}
	defer f.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return Result{}, fmt.Errorf("extract text from %s: %w", args.Path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return Result{}, fmt.Errorf("read text from %s: %w", args.Path, err)
	}

	res = Result{Path: args.Path, Pages: reader.NumPage(), Text: buf.String()}
	if args.MaxChars > 0 {
		runes := []rune(res.Text)
		if len(runes) > args.MaxChars {
			res.Text = string(runes[:args.MaxChars])
			res.Truncated = true
		}
	}
	return res, nil
}

// NewPDFTextTool builds the pdf_text tool. It is flagged dangerous because it
// reads arbitrary local paths chosen by the model.
func NewPDFTextTool() (dispatchy.Tool, error) {
	return dispatchy.NewTool(
		"pdf_text",
		"Extracts plain text from a PDF document on the local filesystem.",
		ExtractText,
		dispatchy.WithTags("document"),
		dispatchy.WithDangerous(),
	)
}

// Register builds the toolkit's tools and registers them on reg.
func Register(reg *dispatchy.Registry) error {
	t, err := NewPDFTextTool()
	if err != nil {
		return err
	}
	return reg.Register(t)
}
