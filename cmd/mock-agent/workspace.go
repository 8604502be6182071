package main

import (
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// workspaceFile pairs the absolute path sent to the client with the relative
// form used in transcript output.
type workspaceFile struct {
	abs string
	rel string
}

var (
	wsRoot  string
	wsFiles []workspaceFile
	wsReady bool
)

// textExtensions whitelists files the read scenario may open.
var textExtensions = map[string]bool{
	".go": true, ".md": true, ".txt": true, ".json": true, ".yaml": true,
	".yml": true, ".toml": true, ".mod": true, ".sum": true, ".sh": true,
	".py": true, ".js": true, ".ts": true, ".css": true, ".html": true,
}

// skipDirs excludes trees that are large or uninteresting to read from.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".idea": true,
	"dist": true, "build": true, "target": true,
}

const maxWorkspaceFiles = 150

// workspaceFiles returns the cached discovery result, scanning on first use.
func workspaceFiles() []workspaceFile {
	if !wsReady {
		discoverWorkspace()
	}
	return wsFiles
}

func workspaceRoot() string {
	if !wsReady {
		discoverWorkspace()
	}
	if wsRoot == "" {
		return "."
	}
	return wsRoot
}

// discoverWorkspace walks the working directory collecting small text files
// the read scenario can target. Errors leave an empty list; scenarios cope
// with that.
func discoverWorkspace() {
	wsReady = true
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	wsRoot = cwd
	_ = filepath.WalkDir(cwd, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != cwd && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if len(wsFiles) >= maxWorkspaceFiles {
			return filepath.SkipAll
		}
		if !textExtensions[filepath.Ext(d.Name())] {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || info.Size() == 0 || info.Size() > 256*1024 {
			return nil
		}
		rel, relErr := filepath.Rel(cwd, path)
		if relErr != nil {
			rel = path
		}
		wsFiles = append(wsFiles, workspaceFile{abs: path, rel: rel})
		return nil
	})
}

// randomWorkspaceFile picks one discovered file, or "" when none exist.
func randomWorkspaceFile() string {
	files := workspaceFiles()
	if len(files) == 0 {
		return ""
	}
	return files[rand.Intn(len(files))].abs
}

// workspacePaths returns up to n distinct relative paths for fabricated
// search results.
func workspacePaths(n int) []string {
	files := workspaceFiles()
	if len(files) == 0 {
		return nil
	}
	idx := rand.Perm(len(files))
	if len(idx) > n {
		idx = idx[:n]
	}
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, files[i].rel)
	}
	return out
}

// displayPath renders an absolute path relative to the workspace root when
// possible.
func displayPath(path string) string {
	if wsRoot == "" {
		return path
	}
	rel, err := filepath.Rel(wsRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
