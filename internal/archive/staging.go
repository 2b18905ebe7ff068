package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/filex"
	"github.com/google/uuid"
)

// stagedDir pairs a live media directory with the hidden sibling that
// receives the restored files.
type stagedDir struct {
	live    string
	staged  string
	old     string
	hadLive bool
	swapped bool
}

// staging collects restored media next to the live directories so the final
// swap is a rename on the same file system. A media kind with no configured
// directory has no slot and its entries are refused.
type staging struct {
	dirs [2]*stagedDir
}

var errNoMediaDir = errors.New("no media directory configured")

func newStaging(audioDir, photoDir string) (*staging, error) {
	id := uuid.NewString()[:8]
	st := &staging{}
	if audioDir != "" && photoDir != "" && filepath.Clean(audioDir) == filepath.Clean(photoDir) {
		return nil, fmt.Errorf("staging: audio and photo directories are the same: %w", common.ErrValidation)
	}
	for i, live := range []string{audioDir, photoDir} {
		if live == "" {
			continue
		}
		abs, err := filepath.Abs(live)
		if err != nil {
			st.cleanup()
			return nil, fmt.Errorf("staging: %w", err)
		}
		parent, err := filex.EnsureDir(filepath.Dir(abs))
		if err != nil {
			st.cleanup()
			return nil, fmt.Errorf("staging: %w", err)
		}
		base := filepath.Base(abs)
		d := &stagedDir{
			live:   abs,
			staged: filepath.Join(parent, ".restore_"+id+"_"+base),
			old:    filepath.Join(parent, ".old_"+id+"_"+base),
		}
		if err := os.Mkdir(d.staged, 0o700); err != nil {
			st.cleanup()
			return nil, fmt.Errorf("staging: %w", err)
		}
		st.dirs[i] = d
	}
	return st, nil
}

func (s *staging) put(kind mediaKind, name string, r io.Reader, limit int64) error {
	d := s.dirs[int(kind)]
	if d == nil {
		return errNoMediaDir
	}
	dir := d.staged
	target := filepath.Join(dir, name)
	if !filex.IsWithin(dir, target) || filepath.Dir(target) != dir {
		return fmt.Errorf("entry escapes staging directory")
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(r, limit+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = fmt.Errorf("exceeds %d bytes", limit)
	}
	if err != nil {
		_ = os.Remove(target)
		return err
	}
	return nil
}

// commit swaps every staged directory in. If any swap fails, the swaps
// already made are undone so the live directories are as before.
func (s *staging) commit() error {
	for _, d := range s.dirs {
		if d == nil {
			continue
		}
		if _, err := os.Lstat(d.live); err == nil {
			if err := os.Rename(d.live, d.old); err != nil {
				s.rollback()
				return err
			}
			d.hadLive = true
		}
		if err := os.Rename(d.staged, d.live); err != nil {
			if d.hadLive {
				_ = os.Rename(d.old, d.live)
				d.hadLive = false
			}
			s.rollback()
			return err
		}
		d.swapped = true
	}
	for _, d := range s.dirs {
		if d != nil && d.hadLive {
			_ = os.RemoveAll(d.old)
		}
	}
	return nil
}

func (s *staging) rollback() {
	for i := len(s.dirs) - 1; i >= 0; i-- {
		d := s.dirs[i]
		if d == nil || !d.swapped {
			continue
		}
		_ = os.Rename(d.live, d.staged)
		if d.hadLive {
			_ = os.Rename(d.old, d.live)
		}
		d.swapped = false
	}
}

// cleanup removes whatever staging is left; after a successful commit that
// is nothing.
func (s *staging) cleanup() {
	for _, d := range s.dirs {
		if d != nil {
			_ = os.RemoveAll(d.staged)
		}
	}
}
