package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and prompting on out.
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for each setting, starting from base. Enter keeps the current value.
func (w *Wizard) Run(base *Config) (*Config, error) {
	fmt.Fprintln(w.out, "=== mnemo configuration ===")
	fmt.Fprintln(w.out)

	cfg := *base
	validator := NewValidator()

	for {
		key, err := w.ask("OpenAI API key", maskSecret(cfg.Embedding.APIKey))
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		if err := validator.ValidateAPIKey(key, "openai"); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Embedding.APIKey = key
		cfg.Transcription.APIKey = key
		break
	}

	for {
		answer, err := w.ask("Similarity threshold", strconv.FormatFloat(cfg.Search.SimilarityThreshold, 'f', -1, 64))
		if err != nil {
			return nil, err
		}
		if answer == "" {
			break
		}
		threshold, err := strconv.ParseFloat(answer, 64)
		if err == nil {
			err = validator.ValidateThreshold(threshold)
		}
		if err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Search.SimilarityThreshold = threshold
		break
	}

	for {
		answer, err := w.ask("When embeddings fail (degrade, fail)", cfg.Search.OnEmbeddingError)
		if err != nil {
			return nil, err
		}
		if answer == "" {
			break
		}
		if err := validator.ValidateFailurePolicy(answer); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Search.OnEmbeddingError = answer
		break
	}

	for {
		answer, err := w.ask("Web server port", strconv.Itoa(cfg.Server.Port))
		if err != nil {
			return nil, err
		}
		if answer == "" {
			break
		}
		port, err := strconv.Atoi(answer)
		if err == nil {
			err = validator.ValidatePort(port)
		}
		if err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Server.Port = port
		break
	}

	level, err := w.ask("Log level (debug, info, warn, error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Logging.Level)
		} else {
			cfg.Logging.Level = strings.ToLower(level)
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return &cfg, nil
}

func (w *Wizard) ask(prompt, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, current)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}
	return w.readLine()
}

// readLine returns the trimmed next line. At EOF every remaining answer is
// empty, so the current values are kept.
func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
