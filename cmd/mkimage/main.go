// Command mkimage reads a YAML program manifest, copies each listed ELF
// binary into internal/image/embedded/ (so go:embed can see it from the
// image package), and emits internal/image/programs_gen.go wiring them
// into a Table. Run via `go run ./cmd/mkimage -manifest programs.yaml
// -out internal/image` ahead of building cmd/kernel,
// mirroring the teacher's tools/imageconvert as a standalone build-time
// asset pipeline rather than a runtime dependency, generalized from one
// image to a manifest of many programs.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"text/template"

	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/sysheap/yaos/internal/image"
)

var (
	manifestPath = flag.String("manifest", "programs.yaml", "path to the program manifest")
	outputDir    = flag.String("out", "internal/image", "directory to write programs_gen.go and embedded/ into")
)

func main() {
	flag.Parse()

	manifest, err := readManifest(*manifestPath)
	if err != nil {
		log.Fatalf("mkimage: %v", err)
	}

	embeddedDir := filepath.Join(*outputDir, "embedded")
	if err := os.MkdirAll(embeddedDir, 0o755); err != nil {
		log.Fatalf("mkimage: %v", err)
	}

	bar := progressbar.Default(int64(len(manifest.Programs)), "embedding programs")
	var copied []image.ProgramEntry
	for _, prog := range manifest.Programs {
		destName := prog.Name + ".elf"
		if err := copyFile(prog.Path, filepath.Join(embeddedDir, destName)); err != nil {
			log.Fatalf("mkimage: copying %s: %v", prog.Name, err)
		}
		copied = append(copied, image.ProgramEntry{Name: prog.Name, Path: destName})
		bar.Add(1)
	}

	if err := writeGeneratedSource(filepath.Join(*outputDir, "programs_gen.go"), copied); err != nil {
		log.Fatalf("mkimage: %v", err)
	}
}

func readManifest(path string) (*image.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var manifest image.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &manifest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

var generatedTemplate = template.Must(template.New("programs_gen").Parse(`// Code generated by cmd/mkimage. DO NOT EDIT.

package image

import _ "embed"

{{range .}}//go:embed embedded/{{.Path}}
var embedded_{{.Name}} []byte
{{end}}

// Embedded is the program table baked in at build time.
var Embedded = NewTable(map[string][]byte{
{{range .}}	"{{.Name}}": embedded_{{.Name}},
{{end}}}, []string{
{{range .}}	"{{.Name}}",
{{end}}})
`))

func writeGeneratedSource(path string, entries []image.ProgramEntry) error {
	var buf bytes.Buffer
	if err := generatedTemplate.Execute(&buf, entries); err != nil {
		return fmt.Errorf("rendering generated source: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
