package render

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirResolver(t *testing.T) {
	dir := t.TempDir()
	tpl := `{{define "head_prefix"}}<meta name="app">{{end}}` +
		`{{define "body_prefix"}}<header>top</header>{{end}}`
	if err := os.WriteFile(filepath.Join(dir, "base.html"), []byte(tpl), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewDirResolver(dir)
	if err != nil {
		t.Fatalf("NewDirResolver() error = %v", err)
	}

	f, err := r.Resolve("base.html")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if f.HeadPrefix != `<meta name="app">` {
		t.Errorf("HeadPrefix = %q", f.HeadPrefix)
	}
	if f.BodyPrefix != "<header>top</header>" {
		t.Errorf("BodyPrefix = %q", f.BodyPrefix)
	}
	if f.HeadSuffix != "" || f.BodySuffix != "" {
		t.Errorf("undefined blocks must be empty, got %+v", f)
	}
}

func TestDirResolver_EmptyNameIsIdentity(t *testing.T) {
	r, err := NewDirResolver("")
	if err != nil {
		t.Fatalf("NewDirResolver() error = %v", err)
	}
	f, err := r.Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !f.IsZero() {
		t.Errorf("Resolve(\"\") = %+v, want zero fragments", f)
	}
}

func TestDirResolver_UnknownName(t *testing.T) {
	r, err := NewDirResolver(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirResolver() error = %v", err)
	}
	_, err = r.Resolve("missing.html")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("error = %v, want ErrTemplateNotFound", err)
	}
}

func TestDirResolver_MissingDir(t *testing.T) {
	_, err := NewDirResolver(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("NewDirResolver() expected error for missing dir, got nil")
	}
}

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"x": {HeadPrefix: "<x>"}}

	f, err := r.Resolve("x")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if f.HeadPrefix != "<x>" {
		t.Errorf("HeadPrefix = %q", f.HeadPrefix)
	}

	if f, err = r.Resolve(""); err != nil || !f.IsZero() {
		t.Errorf("Resolve(\"\") = %+v, %v; want zero fragments, nil", f, err)
	}

	if _, err = r.Resolve("y"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("error = %v, want ErrTemplateNotFound", err)
	}
}
