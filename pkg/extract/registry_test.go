package extract

import (
	"context"
	"errors"
	"testing"
)

func fakeEngine(name, text string, err error, calls *[]string) Engine {
	return EngineFunc{Label: name, Fn: func(context.Context, string) (string, error) {
		*calls = append(*calls, name)
		return text, err
	}}
}

func TestRegistryFallsBackToNextEngine(t *testing.T) {
	var calls []string
	r := NewRegistry()
	r.Register(Strategy{Format: "pdf", Engines: []Engine{
		fakeEngine("primary", "", errors.New("broken xref"), &calls),
		fakeEngine("secondary", "recovered", nil, &calls),
		fakeEngine("tertiary", "unused", nil, &calls),
	}}, ".pdf")

	var observed []string
	r.Observe(func(format, engine string, err error) {
		observed = append(observed, format+"/"+engine)
	})

	got, err := r.Extract(context.Background(), "doc.pdf", ".pdf")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "recovered" {
		t.Fatalf("Extract() = %q, want %q", got, "recovered")
	}
	if len(calls) != 2 || calls[1] != "secondary" {
		t.Fatalf("engine calls = %v, want [primary secondary]", calls)
	}
	if len(observed) != 2 || observed[0] != "pdf/primary" {
		t.Fatalf("observed = %v", observed)
	}
}

func TestRegistryWrapsEngineFailures(t *testing.T) {
	var calls []string
	cause := errors.New("mupdf exploded")
	r := NewRegistry()
	r.Register(Strategy{Format: "pdf", Engines: []Engine{
		fakeEngine("a", "", cause, &calls),
		fakeEngine("b", "", errors.New("also broken"), &calls),
	}}, ".pdf")

	_, err := r.Extract(context.Background(), "doc.pdf", "PDF")
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extractionErr.Format != "pdf" {
		t.Fatalf("format = %q, want pdf", extractionErr.Format)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestRegistryRejectsUnsupportedExtension(t *testing.T) {
	r := NewDefaultRegistry(Options{})
	_, err := r.Extract(context.Background(), "setup.exe", ".exe")
	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
	if unsupported.Extension != ".exe" {
		t.Fatalf("extension = %q, want .exe", unsupported.Extension)
	}
}

func TestRegistryReturnsBlankTextAsIs(t *testing.T) {
	var calls []string
	r := NewRegistry()
	r.Register(Strategy{Format: "text", Engines: []Engine{fakeEngine("blank", "  \n ", nil, &calls)}}, "txt")
	got, err := r.Extract(context.Background(), "x.txt", ".TXT")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "  \n " {
		t.Fatalf("Extract() = %q, want blank text unchanged", got)
	}
}

func TestDefaultRegistrySupportsFormats(t *testing.T) {
	r := NewDefaultRegistry(Options{})
	for _, ext := range []string{".txt", ".DOCX", "xlsx", ".pdf", ".png", ".jpg", ".html", ".epub"} {
		if !r.Supports(ext) {
			t.Fatalf("Supports(%q) = false, want true", ext)
		}
	}
	if r.Supports(".exe") {
		t.Fatal("Supports(.exe) = true, want false")
	}
}
