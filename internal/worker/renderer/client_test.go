package renderer

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"rendernode/internal/pkg/errors"
)

func TestRenderEchoesStdin(t *testing.T) {
	c := NewExecClient("sh", []string{"-c", "cat"}, nil)

	scene := bytes.Repeat([]byte(`{"sphere":1}`), 20000)
	out, err := c.Render(context.Background(), scene)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(out, scene) {
		t.Errorf("output differs from input: got %d bytes, want %d", len(out), len(scene))
	}
}

func TestRenderNonZeroExit(t *testing.T) {
	c := NewExecClient("sh", []string{"-c", "exit 2"}, nil)

	_, err := c.Render(context.Background(), []byte("{}"))
	if !errors.IsCode(err, errors.CodeRender) {
		t.Fatalf("expected RENDER_ERROR, got %v", err)
	}
	if !strings.Contains(err.Error(), "2") {
		t.Errorf("expected exit code in error, got %q", err.Error())
	}
	if errors.GetFields(err)["exit_code"] != 2 {
		t.Errorf("expected exit_code field 2, got %v", errors.GetFields(err))
	}
}

func TestRenderStderrPassThrough(t *testing.T) {
	var diag bytes.Buffer
	c := NewExecClient("sh", []string{"-c", "echo parsing scene >&2; printf PNG"}, &diag)

	out, err := c.Render(context.Background(), nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(out) != "PNG" {
		t.Errorf("stdout = %q, want PNG", out)
	}
	if !strings.Contains(diag.String(), "parsing scene") {
		t.Errorf("stderr not passed through: %q", diag.String())
	}
}

func TestRenderMissingExecutable(t *testing.T) {
	c := NewExecClient("/nonexistent/renderer", nil, nil)

	_, err := c.Render(context.Background(), nil)
	if !errors.IsCode(err, errors.CodeRender) {
		t.Fatalf("expected RENDER_ERROR, got %v", err)
	}
}

func TestRenderCanceled(t *testing.T) {
	c := NewExecClient("sh", []string{"-c", "exec sleep 5"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Render(ctx, nil)
	if err == nil {
		t.Fatal("expected error on cancel")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("render was not killed on context cancel")
	}
}
