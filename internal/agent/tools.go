package agent

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"darwin.app/engine/common/llm"
)

const (
	maxListResults   = 200
	maxSearchMatches = 50
	maxReadLines     = 500
	defaultReadLines = 200
	maxLineLength    = 2000
	maxFileSize      = 1 << 20

	toolListFiles = "list_files"
	toolReadFile  = "read_file"
	toolSearch    = "search"
	toolWriteFile = "write_file"
	toolEditFile  = "edit_file"
	toolFinish    = "finish"
)

// ListFilesParams for file discovery.
type ListFilesParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Glob matched against the file name or the path relative to the repo root (e.g. '*.go', 'src/*.ts')"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search in. Defaults to repo root."`
}

type ReadFileParams struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path to the file (relative to repo root)"`
	Offset   int    `json:"offset,omitempty" jsonschema:"description=Line number to start reading from (1-indexed)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Number of lines to read (default 200, max 500)"`
}

type SearchParams struct {
	Pattern    string `json:"pattern" jsonschema:"required,description=Regular expression to search for in file contents"`
	Path       string `json:"path,omitempty" jsonschema:"description=File or directory to search. Defaults to repo root."`
	Glob       string `json:"glob,omitempty" jsonschema:"description=Only search files whose name matches this glob (e.g. '*.go')"`
	IgnoreCase bool   `json:"ignore_case,omitempty" jsonschema:"description=Case insensitive search"`
}

type WriteFileParams struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path to the file (relative to repo root). Parent directories are created."`
	Content  string `json:"content" jsonschema:"required,description=Full new file content"`
}

type EditFileParams struct {
	FilePath  string `json:"file_path" jsonschema:"required,description=Path to the file (relative to repo root)"`
	OldString string `json:"old_string" jsonschema:"required,description=Exact text to replace. Must occur exactly once in the file."`
	NewString string `json:"new_string" jsonschema:"required,description=Replacement text"`
}

type FinishParams struct {
	Summary string `json:"summary" jsonschema:"required,description=One paragraph describing the change for the pull request"`
}

// workTree is the tool surface over one cloned repository. Every path is
// resolved against root and rejected if it escapes it.
type workTree struct {
	root string

	mu      sync.Mutex
	changed []string
	seen    map[string]bool

	finished bool
	summary  string
}

func newWorkTree(root string) *workTree {
	return &workTree{root: root, seen: map[string]bool{}}
}

func (w *workTree) definitions() []llm.Tool {
	return []llm.Tool{
		{
			Name:        toolListFiles,
			Description: "List files matching a glob. Skips .git. Returns at most 200 paths relative to the repo root.",
			Parameters:  llm.GenerateSchemaFrom(ListFilesParams{}),
		},
		{
			Name:        toolReadFile,
			Description: "Read a file with line numbers. Use offset and limit for large files.",
			Parameters:  llm.GenerateSchemaFrom(ReadFileParams{}),
		},
		{
			Name:        toolSearch,
			Description: "Search file contents with a regular expression. Returns file:line:text, at most 50 matches.",
			Parameters:  llm.GenerateSchemaFrom(SearchParams{}),
		},
		{
			Name:        toolEditFile,
			Description: "Replace one exact, unique occurrence of old_string with new_string. Prefer this over write_file for existing files.",
			Parameters:  llm.GenerateSchemaFrom(EditFileParams{}),
		},
		{
			Name:        toolWriteFile,
			Description: "Create or overwrite a file with the given content.",
			Parameters:  llm.GenerateSchemaFrom(WriteFileParams{}),
		},
		{
			Name:        toolFinish,
			Description: "Call once the change is complete. Do not call any other tool afterwards.",
			Parameters:  llm.GenerateSchemaFrom(FinishParams{}),
		},
	}
}

// execute runs a tool. Problems the model can correct are returned as
// result text; only malformed arguments are errors.
func (w *workTree) execute(ctx context.Context, name, arguments string) (string, error) {
	switch name {
	case toolListFiles:
		return w.listFiles(ctx, arguments)
	case toolReadFile:
		return w.readFile(arguments)
	case toolSearch:
		return w.search(ctx, arguments)
	case toolWriteFile:
		return w.writeFile(arguments)
	case toolEditFile:
		return w.editFile(arguments)
	case toolFinish:
		return w.finish(arguments)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

func (w *workTree) changedFiles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.changed...)
}

func (w *workTree) listFiles(ctx context.Context, arguments string) (string, error) {
	params, err := llm.ParseToolArguments[ListFilesParams](arguments)
	if err != nil {
		return "", err
	}
	if params.Pattern == "" {
		return "Error: pattern is required", nil
	}
	if _, err := filepath.Match(params.Pattern, ""); err != nil {
		return fmt.Sprintf("Error: invalid pattern: %s", err), nil
	}

	base, ok := w.resolve(params.Path)
	if !ok {
		return "Error: path outside repository", nil
	}

	var matches []string
	truncated := false
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel := w.rel(path)
		nameHit, _ := filepath.Match(params.Pattern, d.Name())
		relHit, _ := filepath.Match(params.Pattern, rel)
		if !nameHit && !relHit {
			return nil
		}
		if len(matches) >= maxListResults {
			truncated = true
			return filepath.SkipAll
		}
		matches = append(matches, rel)
		return nil
	})
	if walkErr != nil {
		return fmt.Sprintf("Error: %s", walkErr), nil
	}

	if len(matches) == 0 {
		return fmt.Sprintf("No files match %s", params.Pattern), nil
	}
	sort.Strings(matches)
	out := strings.Join(matches, "\n")
	if truncated {
		out += fmt.Sprintf("\n[Showing first %d files. Narrow the pattern or path.]", maxListResults)
	}
	return out, nil
}

func (w *workTree) readFile(arguments string) (string, error) {
	params, err := llm.ParseToolArguments[ReadFileParams](arguments)
	if err != nil {
		return "", err
	}
	if params.FilePath == "" {
		return "Error: file_path is required", nil
	}
	fullPath, ok := w.resolve(params.FilePath)
	if !ok {
		return "Error: path outside repository", nil
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", params.FilePath), nil
		}
		return fmt.Sprintf("Error: cannot read file: %s", err), nil
	}
	defer file.Close()

	offset := max(params.Offset, 1)
	limit := params.Limit
	if limit < 1 {
		limit = defaultReadLines
	}
	limit = min(limit, maxReadLines)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxFileSize)
	var result strings.Builder
	lineNum, linesRead := 0, 0
	for scanner.Scan() {
		lineNum++
		if lineNum < offset {
			continue
		}
		if linesRead >= limit {
			break
		}
		line := scanner.Text()
		if len(line) > maxLineLength {
			line = line[:maxLineLength] + "..."
		}
		fmt.Fprintf(&result, "%6d\t%s\n", lineNum, line)
		linesRead++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Sprintf("Error reading file: %s", err), nil
	}

	if linesRead == 0 {
		if lineNum == 0 {
			return "File is empty", nil
		}
		return fmt.Sprintf("No lines at offset %d (file has %d lines)", offset, lineNum), nil
	}
	return result.String(), nil
}

func (w *workTree) search(ctx context.Context, arguments string) (string, error) {
	params, err := llm.ParseToolArguments[SearchParams](arguments)
	if err != nil {
		return "", err
	}
	if params.Pattern == "" {
		return "Error: pattern is required", nil
	}
	expr := params.Pattern
	if params.IgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Sprintf("Error: invalid pattern: %s", err), nil
	}

	base, ok := w.resolve(params.Path)
	if !ok {
		return "Error: path outside repository", nil
	}

	var result strings.Builder
	matches := 0
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if params.Glob != "" {
			if hit, _ := filepath.Match(params.Glob, d.Name()); !hit {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || isBinary(data) {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if !re.MatchString(line) {
				continue
			}
			if matches >= maxSearchMatches {
				return filepath.SkipAll
			}
			if len(line) > maxLineLength {
				line = line[:maxLineLength] + "..."
			}
			fmt.Fprintf(&result, "%s:%d:%s\n", w.rel(path), i+1, line)
			matches++
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Sprintf("Error: %s", walkErr), nil
	}

	if matches == 0 {
		return fmt.Sprintf("No matches for pattern: %s", params.Pattern), nil
	}
	if matches >= maxSearchMatches {
		fmt.Fprintf(&result, "\n[Showing %d matches. Add a glob filter or refine the pattern.]", maxSearchMatches)
	}
	return result.String(), nil
}

func (w *workTree) writeFile(arguments string) (string, error) {
	params, err := llm.ParseToolArguments[WriteFileParams](arguments)
	if err != nil {
		return "", err
	}
	if params.FilePath == "" {
		return "Error: file_path is required", nil
	}
	fullPath, ok := w.resolve(params.FilePath)
	if !ok || w.insideGitDir(fullPath) {
		return "Error: path outside repository", nil
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Sprintf("Error: cannot create directory: %s", err), nil
	}
	if err := os.WriteFile(fullPath, []byte(params.Content), 0o644); err != nil {
		return fmt.Sprintf("Error: cannot write file: %s", err), nil
	}
	w.markChanged(fullPath)
	return fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), w.rel(fullPath)), nil
}

func (w *workTree) editFile(arguments string) (string, error) {
	params, err := llm.ParseToolArguments[EditFileParams](arguments)
	if err != nil {
		return "", err
	}
	if params.FilePath == "" || params.OldString == "" {
		return "Error: file_path and old_string are required", nil
	}
	fullPath, ok := w.resolve(params.FilePath)
	if !ok || w.insideGitDir(fullPath) {
		return "Error: path outside repository", nil
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", params.FilePath), nil
		}
		return fmt.Sprintf("Error: cannot read file: %s", err), nil
	}
	content := string(data)
	switch n := strings.Count(content, params.OldString); n {
	case 0:
		return "Error: old_string not found. Read the file again and copy the text exactly.", nil
	case 1:
	default:
		return fmt.Sprintf("Error: old_string occurs %d times. Include more surrounding context.", n), nil
	}

	updated := strings.Replace(content, params.OldString, params.NewString, 1)
	info, _ := os.Stat(fullPath)
	mode := fs.FileMode(0o644)
	if info != nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(fullPath, []byte(updated), mode); err != nil {
		return fmt.Sprintf("Error: cannot write file: %s", err), nil
	}
	w.markChanged(fullPath)
	return fmt.Sprintf("Edited %s", w.rel(fullPath)), nil
}

func (w *workTree) finish(arguments string) (string, error) {
	params, err := llm.ParseToolArguments[FinishParams](arguments)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	w.finished = true
	w.summary = strings.TrimSpace(params.Summary)
	w.mu.Unlock()
	return "Done.", nil
}

func (w *workTree) markChanged(fullPath string) {
	rel := w.rel(fullPath)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.seen[rel] {
		w.seen[rel] = true
		w.changed = append(w.changed, rel)
	}
}

func (w *workTree) resolve(p string) (string, bool) {
	full := filepath.Join(w.root, p)
	return full, pathWithinRoot(w.root, full)
}

func (w *workTree) rel(full string) string {
	rel, err := filepath.Rel(w.root, full)
	if err != nil {
		return full
	}
	return filepath.ToSlash(rel)
}

func (w *workTree) insideGitDir(full string) bool {
	rel := w.rel(full)
	return rel == ".git" || strings.HasPrefix(rel, ".git/")
}

func pathWithinRoot(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

func isBinary(data []byte) bool {
	n := min(len(data), 8000)
	for _, b := range data[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}
