package speech

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/vigil/pkg/audio"
)

// DefaultArchiveKeep is how many clips an archive retains by default.
const DefaultArchiveKeep = 5

// ClipArchive stores the most recent synthesised clips as WAV files in one
// directory, deleting the oldest once more than Keep are present. It is safe
// for concurrent use.
type ClipArchive struct {
	fs   afero.Fs
	dir  string
	keep int
	now  func() time.Time

	mu    sync.Mutex
	seq   int
	files []string
}

// NewClipArchive creates an archive rooted at dir on fs. keep ≤ 0 selects
// DefaultArchiveKeep.
func NewClipArchive(fs afero.Fs, dir string, keep int) (*ClipArchive, error) {
	if keep <= 0 {
		keep = DefaultArchiveKeep
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: archive dir: %w", err)
	}
	return &ClipArchive{fs: fs, dir: dir, keep: keep, now: time.Now}, nil
}

// Save writes c and evicts clips beyond the retention limit.
func (a *ClipArchive) Save(c Clip) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	name := filepath.Join(a.dir, fmt.Sprintf("%s-%04d-u%d.wav", a.now().Format("20060102T150405"), a.seq, c.Unit.Index))
	f, err := a.fs.Create(name)
	if err != nil {
		return fmt.Errorf("speech: archive create: %w", err)
	}
	if err := audio.WriteWAV(f, c.Audio); err != nil {
		_ = f.Close()
		_ = a.fs.Remove(name)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("speech: archive close: %w", err)
	}
	a.files = append(a.files, name)

	for len(a.files) > a.keep {
		old := a.files[0]
		a.files = a.files[1:]
		if err := a.fs.Remove(old); err != nil {
			return fmt.Errorf("speech: archive evict: %w", err)
		}
	}
	return nil
}

// Files returns the retained file names, oldest first.
func (a *ClipArchive) Files() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.files...)
}
