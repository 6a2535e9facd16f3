package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execGenerator struct {
	cmd []string
	mu  sync.Mutex
}

type execPayload struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type execResponse struct {
	Content string `json:"content"`
}

// NewExecGenerator returns a backend that shells out to an external
// completion command: JSON request on stdin, JSON response on stdout.
func NewExecGenerator(command string) (Generator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse generator command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("generator command empty")
	}
	return &execGenerator{cmd: args}, nil
}

func (g *execGenerator) Complete(ctx context.Context, req Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	input, err := json.Marshal(execPayload{
		Prompt:      Prompt(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", err
	}

	base := g.cmd[0]
	args := append([]string{}, g.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("generator exec command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode generator exec response: %w", err)
	}
	return resp.Content, nil
}
