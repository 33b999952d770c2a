package extract

// Options tunes the external tools used by the default registry.
type Options struct {
	PdftotextCommand string
	OCRCommand       string
	OCRLanguage      string
	// TempDir holds scratch copies made while repairing PDFs. Empty means os.TempDir.
	TempDir string
}

// NewDefaultRegistry wires every supported format family.
func NewDefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	r.Register(Strategy{Format: "text", Engines: []Engine{PlainText()}}, ".txt", ".md")
	r.Register(Strategy{Format: "docx", Engines: []Engine{WordDocument()}}, ".docx")
	r.Register(Strategy{Format: "spreadsheet", Engines: []Engine{Spreadsheet()}}, ".xlsx", ".xlsm")
	r.Register(Strategy{Format: "pdf", Engines: []Engine{
		Fitz(),
		Pdftotext(opts.PdftotextCommand),
		GoPDF(),
		RepairedPDF(opts.TempDir),
	}}, ".pdf")
	r.Register(Strategy{Format: "image", Engines: []Engine{
		Tesseract(opts.OCRCommand, opts.OCRLanguage),
	}}, ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp")
	r.Register(Strategy{Format: "html", Engines: []Engine{HTMLDocument()}}, ".html", ".htm")
	r.Register(Strategy{Format: "epub", Engines: []Engine{Fitz(), EPUBArchive()}}, ".epub")
	return r
}
