package render

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"nextjs-proxy-go/internal/injector"
)

// ErrTemplateNotFound is returned when a named customization template does
// not exist. This is a caller configuration error; no upstream request is
// made and no document bytes are sent.
var ErrTemplateNotFound = errors.New("customization template not found")

// TemplateResolver resolves a customization template name to the four
// markup fragments spliced into the document. The empty name always
// resolves to empty fragments (the identity transform).
type TemplateResolver interface {
	Resolve(name string) (injector.Fragments, error)
}

// fragmentBlocks maps template block names to their insertion points.
var fragmentBlocks = []string{"head_prefix", "head_suffix", "body_prefix", "body_suffix"}

// DirResolver loads customization templates from a directory at startup.
// Each *.html file is one template; within it, the optional blocks
// head_prefix, head_suffix, body_prefix and body_suffix define the
// fragments. Missing blocks yield empty fragments.
type DirResolver struct {
	templates map[string]*template.Template
}

// NewDirResolver parses every *.html file under dir. An empty dir yields a
// resolver that only knows the empty (identity) template.
func NewDirResolver(dir string) (*DirResolver, error) {
	r := &DirResolver{templates: map[string]*template.Template{}}
	if dir == "" {
		return r, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".html" {
			continue
		}
		t, err := template.ParseFiles(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", e.Name(), err)
		}
		r.templates[e.Name()] = t
	}
	return r, nil
}

// Resolve executes the named template's fragment blocks.
func (r *DirResolver) Resolve(name string) (injector.Fragments, error) {
	if name == "" {
		return injector.Fragments{}, nil
	}
	t, ok := r.templates[name]
	if !ok {
		return injector.Fragments{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	var out [4]string
	for i, block := range fragmentBlocks {
		b := t.Lookup(block)
		if b == nil {
			continue
		}
		var buf bytes.Buffer
		if err := b.Execute(&buf, nil); err != nil {
			return injector.Fragments{}, fmt.Errorf("execute template %q block %q: %w", name, block, err)
		}
		out[i] = buf.String()
	}

	return injector.Fragments{
		HeadPrefix: out[0],
		HeadSuffix: out[1],
		BodyPrefix: out[2],
		BodySuffix: out[3],
	}, nil
}

// StaticResolver maps names directly to fragments. Useful for hosts that
// assemble fragments in code, and for tests.
type StaticResolver map[string]injector.Fragments

// Resolve implements TemplateResolver.
func (r StaticResolver) Resolve(name string) (injector.Fragments, error) {
	if name == "" {
		return injector.Fragments{}, nil
	}
	f, ok := r[name]
	if !ok {
		return injector.Fragments{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return f, nil
}
