package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
}

// HTMLDocument extracts visible text, keeping one line per block element.
func HTMLDocument() Engine {
	return EngineFunc{Label: "x/net/html", Fn: func(_ context.Context, path string) (string, error) {
		file, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open html: %w", err)
		}
		defer file.Close()
		return htmlText(file)
	}}
}

// EPUBArchive reads the XHTML members of an EPUB in archive order.
func EPUBArchive() Engine {
	return EngineFunc{Label: "epub-zip", Fn: readEPUB}
}

func readEPUB(_ context.Context, path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}
	defer reader.Close()

	files := make([]*zip.File, 0, len(reader.File))
	for _, file := range reader.File {
		name := strings.ToLower(file.Name)
		if strings.HasSuffix(name, ".xhtml") || strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm") {
			files = append(files, file)
		}
	}
	if len(files) == 0 {
		return "", errors.New("epub has no content documents")
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	sections := make([]string, 0, len(files))
	for _, file := range files {
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("read epub file: %w", err)
		}
		text, err := htmlText(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			sections = append(sections, text)
		}
	}
	return strings.Join(sections, "\n\n"), nil
}

func htmlText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" || node.Data == "noscript" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && blockElements[node.Data] {
			buf.WriteString("\n")
		}
	}
	walk(doc)

	lines := strings.Split(buf.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}

// Paragraphs returns the whitespace-collapsed text of every <p> element.
func Paragraphs(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var paragraphs []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "p" {
			text := strings.Join(strings.Fields(nodeText(node)), " ")
			if text != "" {
				paragraphs = append(paragraphs, text)
			}
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return paragraphs, nil
}

func nodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			buf.WriteString(node.Data)
			buf.WriteString(" ")
			return
		}
		if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return buf.String()
}
