package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caldero/toolbridge/internal/chat"
)

func TestResolvePath(t *testing.T) {
	t.Parallel()

	got, err := resolvePath("/work", "out/report.md")
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	if got != filepath.Join("/work", "out", "report.md") {
		t.Fatalf("resolved=%q, want it anchored under /work", got)
	}

	got, err = resolvePath("/work", "/etc/hosts")
	if err != nil {
		t.Fatalf("resolvePath absolute: %v", err)
	}
	if got != "/etc/hosts" {
		t.Fatalf("resolved=%q, want absolute path unchanged", got)
	}

	if _, err := resolvePath("/work", "   "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSaveFileCreatesParentDirectories(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	r := NewRegistry(Options{})

	payload, err := r.handleSaveFile(context.Background(), Call{
		ConversationID: "conv_a",
		WorkDir:        workDir,
		Input:          map[string]any{"file_path": "nested/dir/out.txt", "content": "hello"},
	})
	if err != nil {
		t.Fatalf("handleSaveFile: %v", err)
	}
	if payload["status"] != "success" {
		t.Fatalf("status=%v, want success", payload["status"])
	}

	raw, err := os.ReadFile(filepath.Join(workDir, "nested", "dir", "out.txt"))
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(raw) != "hello" {
		t.Fatalf("content=%q, want %q", raw, "hello")
	}
}

func TestReadFileMissingFile(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Options{})
	_, err := r.handleReadFile(context.Background(), Call{
		WorkDir: t.TempDir(),
		Input:   map[string]any{"file_path": "missing.txt"},
	})
	if err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Fatalf("error=%v, want file-not-found", err)
	}
}

func TestSaveFileResultIsAnnotatedWithRenderInfo(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	r := NewRegistry(Options{})

	res := r.Dispatch(context.Background(), chat.ToolCall{
		ID:    "toolu_01",
		Name:  "save_file",
		Input: map[string]any{"file_path": "report.md", "content": "# Title"},
	}, "conv_a", workDir)

	payload := decodeEnvelope(t, res)
	if payload["render_type"] != "markdown" {
		t.Fatalf("render_type=%v, want markdown", payload["render_type"])
	}
	url, _ := payload["url"].(string)
	if url != "/api/conversation/conv_a/files/report.md" {
		t.Fatalf("url=%q, want the conversation files route", url)
	}
}

func TestAnnotateArtifactSkipsFilesOutsideWorkDir(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Options{})
	payload := map[string]any{
		"status":    "success",
		"file_path": "/elsewhere/report.md",
	}
	r.annotateArtifact("conv_a", "/work", payload)

	if _, ok := payload["url"]; ok {
		t.Fatalf("url set for a file outside the work dir: %v", payload)
	}
}

func TestRenderTypeForPath(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"chart.png":  "image",
		"notes.MD":   "markdown",
		"index.html": "html",
		"data.csv":   "",
	}
	for path, want := range cases {
		if got := renderTypeForPath(path); got != want {
			t.Fatalf("renderTypeForPath(%q)=%q, want %q", path, got, want)
		}
	}
}

func TestInstallPackageRejectsShellMetacharacters(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Options{})
	_, err := r.handleInstallPackage(context.Background(), Call{
		WorkDir: t.TempDir(),
		Input:   map[string]any{"package_name": "requests; rm -rf /"},
	})
	if err == nil {
		t.Fatalf("expected error for package name with shell metacharacters")
	}
}
