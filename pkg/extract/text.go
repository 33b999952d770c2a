package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// PlainText reads the file as UTF-8. A leading BOM is dropped.
func PlainText() Engine {
	return EngineFunc{Label: "utf8", Fn: readPlainText}
}

func readPlainText(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", errors.New("file is not valid UTF-8")
	}
	return strings.TrimPrefix(string(data), "\uFEFF"), nil
}
