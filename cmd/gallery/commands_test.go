package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jo-hoe/gengallery/internal/core"
)

func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf("logLevel: error\ndatabase:\n  type: bbolt\n  connectionString: %s\n%s",
		filepath.Join(dir, "gallery.bolt"), extra)
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func writeTestImage(t *testing.T) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	path := filepath.Join(t.TempDir(), "picture.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path, buf.Bytes()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAddListExportDelete(t *testing.T) {
	configPath := writeTestConfig(t, "")
	imagePath, original := writeTestImage(t)

	out, err := execute(t, "--config", configPath, "add", imagePath)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	id := strings.TrimSpace(out)

	out, err = execute(t, "--config", configPath, "list", "--json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var items []core.GalleryItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	if len(items) != 1 || items[0].ID != id {
		t.Fatalf("expected %s in list, got %+v", id, items)
	}

	exportPath := filepath.Join(t.TempDir(), "exported.png")
	if _, err := execute(t, "--config", configPath, "export", id, "-o", exportPath); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	exported, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if !bytes.Equal(exported, original) {
		t.Fatal("exported bytes differ from the added image")
	}

	if _, err := execute(t, "--config", configPath, "delete", id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	out, err = execute(t, "--config", configPath, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if strings.Contains(out, id) {
		t.Fatalf("expected %s to be gone, got:\n%s", id, out)
	}
}

func TestExport_UnknownID(t *testing.T) {
	configPath := writeTestConfig(t, "")
	if _, err := execute(t, "--config", configPath, "export", "missing"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestGenerate(t *testing.T) {
	_, generated := writeTestImage(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(generated)
	}))
	defer upstream.Close()

	configPath := writeTestConfig(t, fmt.Sprintf("generation:\n  models:\n    - name: sd\n      modelUrl: %s\n", upstream.URL))

	out, err := execute(t, "--config", configPath, "generate", "--model", "sd", "a", "red", "fox")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Fatal("expected generated id on stdout")
	}

	if _, err := execute(t, "--config", configPath, "generate", "a red fox"); err == nil {
		t.Fatal("expected error without --model")
	}
}

func TestAdd_MissingFile(t *testing.T) {
	configPath := writeTestConfig(t, "")
	if _, err := execute(t, "--config", configPath, "add", filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
