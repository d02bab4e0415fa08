// Package image is the embedded program table execute and
// print_programs read from: a name -> ELF bytes map baked into the
// kernel binary at build time by cmd/mkimage, rather than loaded from a
// filesystem this kernel doesn't have. Grounded on original_source's
// src/kernel/build.rs (which globs a userspace target directory into the
// build at compile time) and the teacher's tools/imageconvert, adapted
// from a single-asset converter into a multi-program manifest-driven
// generator since this kernel embeds a whole table of programs, not one
// framebuffer image.
package image

// Table is a read-only name -> ELF image lookup, implementing
// syscalls.ProgramSource without importing that package (the consumer
// names the shape, same pattern as internal/netstack.Socket).
type Table struct {
	byName map[string][]byte
	order  []string
}

// NewTable builds a Table from name/bytes pairs; Names() returns the
// names in the given order slice.
func NewTable(entries map[string][]byte, order []string) *Table {
	return &Table{byName: entries, order: order}
}

func (t *Table) Lookup(name string) ([]byte, bool) {
	b, ok := t.byName[name]
	return b, ok
}

func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}
