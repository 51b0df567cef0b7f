package transcriber

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"scribed/internal/config"
)

// Service runs faster-whisper through uvx, writing its output into a
// throwaway directory and returning the plain-text transcript. It
// implements Backend.
type Service struct {
	cfg           config.Backend
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a faster-whisper service with the given configuration.
func NewService(cfg config.Backend) *Service {
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

// Transcribe runs the backend command against one media file. Whisper
// writes `<base>.txt` into the output directory; that file's content is
// the result.
func (s *Service) Transcribe(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("transcribe: source path required")
	}

	outputDir, err := os.MkdirTemp("", "scribed-whisper-*")
	if err != nil {
		return "", fmt.Errorf("transcribe: create output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	args := s.buildArgs(path, outputDir)
	if err := s.run(ctx, s.cfg.Command, args...); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	textPath := filepath.Join(outputDir, baseName+".txt")
	data, err := os.ReadFile(textPath)
	if err != nil {
		return "", fmt.Errorf("whisper: read output: %w", err)
	}
	return string(data), nil
}

// buildArgs constructs the uvx command arguments for faster-whisper.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := []string{
		"whisper-ctranslate2",
		source,
		"--model", s.cfg.Model,
		"--output_dir", outputDir,
		"--output_format", "txt",
		"--beam_size", strconv.Itoa(s.cfg.BeamSize),
	}
	if s.cfg.Language != "" {
		args = append(args, "--language", s.cfg.Language)
	}
	return args
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
