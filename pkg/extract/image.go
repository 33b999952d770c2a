package extract

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tesseract runs OCR through the tesseract CLI and returns its stdout.
func Tesseract(command, language string) Engine {
	command = strings.TrimSpace(command)
	if command == "" {
		command = "tesseract"
	}
	language = strings.TrimSpace(language)
	return EngineFunc{Label: "tesseract", Fn: func(ctx context.Context, path string) (string, error) {
		if _, err := exec.LookPath(command); err != nil {
			return "", fmt.Errorf("%s not found: %w", command, err)
		}
		args := []string{path, "stdout"}
		if language != "" {
			args = append(args, "-l", language)
		}
		output, err := exec.CommandContext(ctx, command, args...).Output()
		if err != nil {
			return "", fmt.Errorf("%s failed: %w", command, err)
		}
		return string(output), nil
	}}
}
