package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Fitz extracts per-page text with MuPDF. It also reads EPUB.
func Fitz() Engine {
	return EngineFunc{Label: "mupdf", Fn: readWithFitz}
}

func readWithFitz(_ context.Context, path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()
	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

// Pdftotext shells out to poppler's pdftotext.
func Pdftotext(command string) Engine {
	command = strings.TrimSpace(command)
	if command == "" {
		command = "pdftotext"
	}
	return EngineFunc{Label: "pdftotext", Fn: func(ctx context.Context, path string) (string, error) {
		if _, err := exec.LookPath(command); err != nil {
			return "", fmt.Errorf("%s not found: %w", command, err)
		}
		output, err := exec.CommandContext(ctx, command, "-layout", "-enc", "UTF-8", path, "-").Output()
		if err != nil {
			return "", fmt.Errorf("%s failed: %w", command, err)
		}
		return string(output), nil
	}}
}

// GoPDF reads text with the pure-Go PDF reader, skipping pages it cannot decode.
func GoPDF() Engine {
	return EngineFunc{Label: "gopdf", Fn: func(_ context.Context, path string) (string, error) {
		return readWithGoPDF(path)
	}}
}

func readWithGoPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
	}
	if len(pages) == 0 && reader.NumPage() > 0 {
		return "", errors.New("no readable pages")
	}
	return strings.Join(pages, "\n"), nil
}

// RepairedPDF rewrites the file with relaxed validation and reads the copy
// with the pure-Go reader. It is the last resort for damaged files.
func RepairedPDF(tempDir string) Engine {
	return EngineFunc{Label: "pdfcpu-repair", Fn: func(_ context.Context, path string) (string, error) {
		dir, err := os.MkdirTemp(tempDir, "pdf-repair-")
		if err != nil {
			return "", fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(dir)

		repaired := filepath.Join(dir, "repaired.pdf")
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		if err := api.OptimizeFile(path, repaired, conf); err != nil {
			return "", fmt.Errorf("repair pdf: %w", err)
		}
		return readWithGoPDF(repaired)
	}}
}
