package tools

import (
	"path/filepath"
	"strings"
)

// renderTypeForPath classifies a produced file for display purposes.
// Empty means the file has no browser rendering hint.
func renderTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".bmp":
		return "image"
	case ".md", ".markdown":
		return "markdown"
	case ".html", ".htm":
		return "html"
	default:
		return ""
	}
}

// annotateArtifact augments a successful file-producing result with a
// browser-servable URL and a render hint, so downstream consumers can display
// the artifact without re-deriving its type. Results without a file_path, or
// files outside the conversation working directory, are left untouched.
func (r *Registry) annotateArtifact(conversationID string, workDir string, payload map[string]any) {
	if payload == nil {
		return
	}
	if status, _ := payload["status"].(string); status != "success" {
		return
	}
	path, _ := payload["file_path"].(string)
	if strings.TrimSpace(path) == "" {
		return
	}
	render := renderTypeForPath(path)
	if render == "" {
		return
	}

	rel := path
	if filepath.IsAbs(path) && strings.TrimSpace(workDir) != "" {
		p, err := filepath.Rel(workDir, path)
		if err != nil || strings.HasPrefix(p, "..") {
			return
		}
		rel = p
	}

	payload["render_type"] = render
	payload["url"] = r.fileBaseURL + "/" + conversationID + "/files/" + filepath.ToSlash(rel)
}
