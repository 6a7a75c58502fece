package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/armtc/transcoder/internal/ffmpeg"
)

// mediaFile is one discovered file under a source directory, paired with
// its size so video files can be ordered largest-first (spec §4.8 step
// 4, 9).
type mediaFile struct {
	path string
	size int64
}

// discoverMedia lists recognized media files directly under dir (one
// level, matching a ripper's flat output layout): video files sorted by
// size descending, audio files sorted lexicographically by path (spec
// §4.8 step 4).
func discoverMedia(dir string) (video, audio []mediaFile, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		switch {
		case ffmpeg.IsVideoFile(path):
			video = append(video, mediaFile{path: path, size: info.Size()})
		case ffmpeg.IsAudioFile(path):
			audio = append(audio, mediaFile{path: path, size: info.Size()})
		}
	}

	sort.Slice(video, func(i, j int) bool { return video[i].size > video[j].size })
	sort.Slice(audio, func(i, j int) bool { return audio[i].path < audio[j].path })
	return video, audio, nil
}

// largestFile returns the mediaFile with the greatest size among files,
// used to record main_feature_file (spec §4.8 step 9, GLOSSARY "Main
// feature").
func largestFile(files []mediaFile) (mediaFile, bool) {
	if len(files) == 0 {
		return mediaFile{}, false
	}
	best := files[0]
	for _, f := range files[1:] {
		if f.size > best.size {
			best = f
		}
	}
	return best, true
}

// copyFile copies src to dst, creating dst's parent directory. dst is
// created with os.Create's default mode; the source's permission bits are
// not carried over.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// moveFile relocates src to dst, falling back to copy-then-remove when
// the rename fails across filesystem boundaries (work_path and
// completed_path are frequently distinct mounts).
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
