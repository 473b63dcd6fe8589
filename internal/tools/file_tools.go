package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

func saveFileDefinition() Definition {
	return Definition{
		Name:        "save_file",
		Description: "Save content to a file. Creates directories in the path if they don't exist.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path where the file should be saved",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Content to write to the file",
				},
			},
			"required": []string{"file_path", "content"},
		},
	}
}

func readFileDefinition() Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read content from a file.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path to the file to read",
				},
			},
			"required": []string{"file_path"},
		},
	}
}

// resolvePath anchors a relative path at the conversation working directory.
// Absolute paths pass through unchanged.
func resolvePath(workDir string, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("empty file path provided")
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if strings.TrimSpace(workDir) == "" {
		return filepath.Clean(p), nil
	}
	return filepath.Join(workDir, p), nil
}

func stringInput(input map[string]any, key string) string {
	if input == nil {
		return ""
	}
	s, _ := input[key].(string)
	return s
}

func (r *Registry) handleSaveFile(_ context.Context, call Call) (map[string]any, error) {
	path, err := resolvePath(call.WorkDir, stringInput(call.Input, "file_path"))
	if err != nil {
		return nil, err
	}
	content := stringInput(call.Input, "content")

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	r.log.Info("file saved", "path", path)
	return map[string]any{
		"status":    "success",
		"message":   "File saved successfully to " + path,
		"file_path": path,
	}, nil
}

func (r *Registry) handleReadFile(_ context.Context, call Call) (map[string]any, error) {
	path, err := resolvePath(call.WorkDir, stringInput(call.Input, "file_path"))
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.New("file not found: " + path)
		}
		return nil, err
	}
	return map[string]any{
		"status":    "success",
		"message":   "File read successfully from " + path,
		"content":   string(raw),
		"file_path": path,
	}, nil
}
