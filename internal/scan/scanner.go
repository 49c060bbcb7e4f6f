// Package scan expands a heterogeneous set of dropped or selected paths
// (flat files and/or directory trees) into a flat list of transferable
// entries with reconstructed relative paths.
package scan

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SourceKind records where an entry came from. Provenance only; it never
// affects transfer logic.
type SourceKind string

const (
	SourceFileInput   SourceKind = "file-input"
	SourceFolderInput SourceKind = "folder-input"
	SourceDragDrop    SourceKind = "drag-drop"
)

// Entry is one transferable file discovered by the scanner.
type Entry struct {
	// Path is the absolute local path to the file.
	Path string

	// RelativePath is the slash-joined path relative to the drop root. For
	// directory-sourced files this includes the dropped directory's own name
	// ("photos/2024/img.jpg"), which is what lets sibling files in different
	// subdirectories stay distinguishable and what the server uses to
	// rebuild folder structure. Flat files carry just their base name.
	RelativePath string

	// SizeBytes is the file size, known before transfer starts.
	SizeBytes int64

	// Source records the entry's provenance.
	Source SourceKind
}

// readBatchSize is how many directory entries are requested per read. The
// read API returns entries in limited-size batches, so reads loop until a
// batch comes back empty; a single call would silently drop files in large
// directories.
const readBatchSize = 128

// dirWork is one pending directory on the scanner's explicit work-list.
type dirWork struct {
	path string // absolute path of the directory
	rel  string // slash-joined relative path of the directory under the root
}

// Scanner expands drop payloads. It performs no network I/O and keeps no
// state between calls.
type Scanner struct{}

// New creates a scanner.
func New() *Scanner {
	return &Scanner{}
}

// Expand resolves every root path into flat file entries. Files resolve
// directly; directories are traversed with an explicit work-list (no
// recursion, so arbitrarily deep trees cannot overflow the stack). A
// directory yielding zero files contributes nothing. Zero-byte files are
// valid entries. Filenames are preserved verbatim in RelativePath.
func (s *Scanner) Expand(roots []string, source SourceKind) ([]Entry, error) {
	var entries []Entry

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}

		if !info.IsDir() {
			entries = append(entries, Entry{
				Path:         abs,
				RelativePath: strings.TrimPrefix(filepath.ToSlash(info.Name()), "/"),
				SizeBytes:    info.Size(),
				Source:       source,
			})
			continue
		}

		dirEntries, err := s.expandDirectory(abs, info.Name(), source)
		if err != nil {
			return nil, err
		}
		entries = append(entries, dirEntries...)
	}

	return entries, nil
}

// expandDirectory walks one dropped directory tree with a work-list.
func (s *Scanner) expandDirectory(root, rootName string, source SourceKind) ([]Entry, error) {
	var entries []Entry

	work := []dirWork{{path: root, rel: filepath.ToSlash(rootName)}}

	for len(work) > 0 {
		dir := work[len(work)-1]
		work = work[:len(work)-1]

		batch, subdirs, err := readDirectory(dir)
		if err != nil {
			return nil, err
		}

		for _, e := range batch {
			e.Source = source
			entries = append(entries, e)
		}
		work = append(work, subdirs...)
	}

	return entries, nil
}

// readDirectory reads a single directory in batches until exhausted,
// returning its file entries and the sub-directories to enqueue.
func readDirectory(dir dirWork) ([]Entry, []dirWork, error) {
	f, err := os.Open(dir.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open directory %s: %w", dir.path, err)
	}
	defer f.Close()

	var files []Entry
	var subdirs []dirWork

	for {
		batch, err := f.ReadDir(readBatchSize)
		for _, de := range batch {
			childPath := filepath.Join(dir.path, de.Name())
			childRel := dir.rel + "/" + de.Name()

			if de.IsDir() {
				subdirs = append(subdirs, dirWork{path: childPath, rel: childRel})
				continue
			}

			info, statErr := de.Info()
			if statErr != nil {
				return nil, nil, fmt.Errorf("failed to stat %s: %w", childPath, statErr)
			}
			files = append(files, Entry{
				Path:         childPath,
				RelativePath: childRel,
				SizeBytes:    info.Size(),
			})
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read directory %s: %w", dir.path, err)
		}
		// An empty batch without EOF should not happen, but treat it as
		// exhaustion rather than spinning.
		if len(batch) == 0 {
			break
		}
	}

	return files, subdirs, nil
}
