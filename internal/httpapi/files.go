package httpapi

import (
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/caldero/toolbridge/internal/markdown"
)

// fileEntry describes one artifact in a conversation's working directory.
type fileEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ModifiedMs  int64  `json:"modified_ms"`
	ContentType string `json:"content_type,omitempty"`
	RenderType  string `json:"render_type,omitempty"`
	URL         string `json:"url"`
}

// renderTypeForName classifies a file for client-side presentation.
func renderTypeForName(name string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "png", "jpg", "jpeg", "gif", "svg", "webp", "bmp":
		return "image"
	case "md", "markdown":
		return "markdown"
	case "html", "htm":
		return "html"
	}
	return ""
}

// markdownSniffLimit bounds how much of an extensionless text file is read
// when probing it for markdown structure.
const markdownSniffLimit = 256 << 10

// looksLikeMarkdownFile probes .txt and extensionless files for markdown
// structure so the client can offer a rendered view.
func looksLikeMarkdownFile(path string, size int64) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case "", ".txt":
	default:
		return false
	}
	if size <= 0 || size > markdownSniffLimit {
		return false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return markdown.LooksLikeMarkdown(string(raw))
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	workDir, ok := s.store.WorkDir(conversationID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "conversation not found: "+conversationID)
		return
	}

	entries := []fileEntry{}
	err := filepath.WalkDir(workDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(workDir, p)
		if relErr != nil {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		render := renderTypeForName(p)
		if render == "" && looksLikeMarkdownFile(p, info.Size()) {
			render = "markdown"
		}
		entries = append(entries, fileEntry{
			Name:        d.Name(),
			Path:        rel,
			Size:        info.Size(),
			ModifiedMs:  info.ModTime().UnixMilli(),
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
			RenderType:  render,
			URL:         "/api/conversation/" + conversationID + "/files/" + rel,
		})
		return nil
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list files: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"files":           entries,
	})
}

func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	workDir, ok := s.store.WorkDir(conversationID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "conversation not found: "+conversationID)
		return
	}

	rel := path.Clean("/" + r.PathValue("path"))
	if rel == "/" {
		s.writeError(w, http.StatusBadRequest, "missing file path")
		return
	}
	// Clean anchors the path at "/", so joining cannot escape the work dir.
	target := filepath.Join(workDir, filepath.FromSlash(rel))

	raw, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			s.writeError(w, http.StatusNotFound, "file not found: "+rel)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Query().Get("render") == "html" &&
		(renderTypeForName(target) == "markdown" || markdown.LooksLikeMarkdown(string(raw))) {
		html, err := markdown.ToHTML(string(raw))
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(target))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(raw)
}
