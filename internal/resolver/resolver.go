// Package resolver maps a title-derived directory name to the actual
// on-disk directory containing the ripped media, which may differ from
// the name a notification assumed (spec §4.6).
package resolver

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/armtc/transcoder/internal/ffmpeg"
)

// commonSubfolders are the ripper layouts scanned when the direct
// raw_root/title path doesn't contain media (spec §4.6 step 2).
var commonSubfolders = []string{"unidentified", "movies", "tv"}

// Resolver locates a title's actual source directory under a raw root,
// deduplicating concurrent lookups for the same title (spec §5 "Shared
// resources": webhook bursts may repeat a title before the first lookup
// completes).
type Resolver struct {
	rawRoot string
	group   singleflight.Group
}

// New constructs a Resolver rooted at rawRoot.
func New(rawRoot string) *Resolver {
	return &Resolver{rawRoot: rawRoot}
}

// Resolve implements the strategy of spec §4.6: try the direct path
// first, then scan common subfolders for a prefix match, picking the most
// recently modified candidate; on no match, return the title path
// unchanged so the Stabilizer can produce a precise error.
func (r *Resolver) Resolve(title string) string {
	v, _, _ := r.group.Do(title, func() (interface{}, error) {
		return r.resolve(title), nil
	})
	return v.(string)
}

func (r *Resolver) resolve(title string) string {
	direct := filepath.Join(r.rawRoot, title)
	if containsMedia(direct) {
		return direct
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate

	for _, sub := range commonSubfolders {
		dir := filepath.Join(r.rawRoot, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.HasPrefix(e.Name(), title) {
				continue
			}
			full := filepath.Join(dir, e.Name())
			if !containsMedia(full) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			candidates = append(candidates, candidate{path: full, modTime: info.ModTime().UnixNano()})
		}
	}

	if len(candidates) == 0 {
		return direct
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })
	return candidates[0].path
}

// containsMedia reports whether dir (recursively) contains at least one
// recognized media file — a video file or a file with a recognized audio
// extension (spec §4.6).
func containsMedia(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if err == nil && !info.IsDir() {
			return ffmpeg.IsVideoFile(dir) || ffmpeg.IsAudioFile(dir)
		}
		return false
	}

	found := false
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if ffmpeg.IsVideoFile(path) || ffmpeg.IsAudioFile(path) {
			found = true
		}
		return nil
	})
	return found
}
