package fileversion

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// Change is the rewrite planned for one file.
type Change struct {
	Path     string
	Original []byte
	Rendered []byte
	Records  []*Record
}

// Plan holds the rendered content of every file a bump touches. Building a
// plan reads files but never writes them.
type Plan struct {
	fsys    afero.Fs
	Changes []*Change
}

// NewPlan renders every record in memory. Records sharing a file are applied
// to the same buffer in order. It fails without touching any file if a file
// is missing or a record no longer matches its file.
func NewPlan(fsys afero.Fs, records []*Record) (*Plan, error) {
	plan := &Plan{fsys: fsys}
	byPath := make(map[string]*Change)

	for _, r := range records {
		ch, ok := byPath[r.Path]
		if !ok {
			content, err := readFile(fsys, r.Path)
			if err != nil {
				return nil, err
			}
			ch = &Change{Path: r.Path, Original: content, Rendered: content}
			byPath[r.Path] = ch
			plan.Changes = append(plan.Changes, ch)
		}

		rendered, err := r.Render(ch.Rendered)
		if err != nil {
			return nil, err
		}
		ch.Rendered = rendered
		ch.Records = append(ch.Records, r)
	}

	return plan, nil
}

// Apply writes every planned file. If a write fails, files already written
// are restored to their original content; the returned error lists any file
// that could not be restored.
func (p *Plan) Apply() error {
	var written []*Change

	for _, ch := range p.Changes {
		if err := WriteFileAtomic(p.fsys, ch.Path, ch.Rendered); err != nil {
			return p.rollback(written, fmt.Errorf("saving %s: %w", ch.Path, err))
		}
		written = append(written, ch)
	}

	for _, ch := range p.Changes {
		for _, r := range ch.Records {
			r.commit()
		}
	}
	return nil
}

func (p *Plan) rollback(written []*Change, cause error) error {
	err := cause
	var stuck []string
	for i := len(written) - 1; i >= 0; i-- {
		ch := written[i]
		if rerr := WriteFileAtomic(p.fsys, ch.Path, ch.Original); rerr != nil {
			stuck = append(stuck, ch.Path)
			err = multierr.Append(err, fmt.Errorf("restoring %s: %w", ch.Path, rerr))
		}
	}
	if len(stuck) > 0 {
		err = multierr.Append(err, fmt.Errorf("files left changed: %s", strings.Join(stuck, ", ")))
	}
	return err
}

// Paths lists the files in the plan, in write order.
func (p *Plan) Paths() []string {
	paths := make([]string, 0, len(p.Changes))
	for _, ch := range p.Changes {
		paths = append(paths, ch.Path)
	}
	return paths
}
