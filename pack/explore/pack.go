// Package explore provides the read-only repository capabilities shared by
// the explorer and planner agents.
package explore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/repoagent/domain/pack"
	"github.com/felixgeelhaar/repoagent/domain/tool"
	"github.com/felixgeelhaar/repoagent/infrastructure/repo"
)

// Spec names.
const (
	ListFiles       = "list_files"
	ReadFile        = "read_file"
	ReadCodeSnippet = "read_code_snippet"
	FileInfo        = "file_info"
	Dependencies    = "dependencies"
)

// Config configures the explore pack.
type Config struct {
	// ReadWindow is the maximum number of lines one read returns.
	ReadWindow int

	// ListDepth is the default listing depth.
	ListDepth int

	// Timeout bounds one capability execution. Zero uses the executor default.
	Timeout time.Duration
}

// Option configures the explore pack.
type Option func(*Config)

// WithReadWindow sets the read window.
func WithReadWindow(lines int) Option {
	return func(c *Config) {
		c.ReadWindow = lines
	}
}

// WithListDepth sets the default listing depth.
func WithListDepth(depth int) Option {
	return func(c *Config) {
		c.ListDepth = depth
	}
}

// WithTimeout sets the capability timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// New creates the explore pack over reader.
func New(reader *repo.Reader, opts ...Option) (*pack.Pack, error) {
	if reader == nil {
		return nil, errors.New("reader is required")
	}
	cfg := Config{
		ReadWindow: 200,
		ListDepth:  1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ReadWindow <= 0 {
		return nil, fmt.Errorf("read window must be positive, got %d", cfg.ReadWindow)
	}
	if cfg.ListDepth < repo.UnlimitedDepth {
		return nil, fmt.Errorf("list depth must be >= -1, got %d", cfg.ListDepth)
	}

	e := &explorer{reader: reader, cfg: cfg}
	specs := []*tool.Spec{
		e.listFilesSpec(),
		e.readFileSpec(),
		e.readCodeSnippetSpec(),
		e.fileInfoSpec(),
		e.dependenciesSpec(),
	}
	return pack.NewBuilder("explore").
		WithDescription("Read-only repository exploration").
		WithVersion("1.0.0").
		AddSpecs(specs...).
		Build(), nil
}

type explorer struct {
	reader *repo.Reader
	cfg    Config
}

// --- list_files ---

type listFilesArgs struct {
	Directory string `json:"directory,omitempty" jsonschema:"the directory to list, relative to the repository root"`
	Depth     int    `json:"depth,omitempty" jsonschema:"how many directory levels to expand; -1 expands everything"`
}

func (e *explorer) listFilesSpec() *tool.Spec {
	return tool.For(ListFiles, func(ctx context.Context, _ tool.Call, args listFilesArgs) (tool.Result, error) {
		idx := e.reader.Index(ctx)
		if args.Depth < repo.UnlimitedDepth {
			return tool.Fail(fmt.Sprintf("depth must be -1 or greater, got %d", args.Depth)), nil
		}
		out, err := idx.RenderTree(args.Directory, args.Depth)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) || errors.Is(err, repo.ErrNotDirectory) {
				return tool.Fail(fmt.Sprintf("Directory %s not found in the repository.", args.Directory)), nil
			}
			return tool.Result{}, err
		}
		return tool.OK(out), nil
	}).
		WithDescription("List the files and directories in a directory of the repository. "+
			"Files are shown as '- [File]: path', expanded directories as 'v [Dir]: path:' "+
			"and collapsed directories as '> [Dir]: path'.").
		WithDefault("directory", ".").
		WithDefault("depth", e.cfg.ListDepth).
		ReadOnly().
		Cacheable().
		MustBuild()
}

// --- read_file ---

type readFileArgs struct {
	FilePath  string `json:"file_path" jsonschema:"the path of the file to read"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"the first line to show, starting at 1"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"the last line to show"`
}

func (e *explorer) readFileSpec() *tool.Spec {
	return tool.For(ReadFile, func(ctx context.Context, _ tool.Call, args readFileArgs) (tool.Result, error) {
		out, err := e.window(ctx, args.FilePath, args.StartLine, args.EndLine)
		if err != nil {
			return tool.Fail(err.Error()), nil
		}
		return tool.OK(out), nil
	}).
		WithDescription(fmt.Sprintf("Read a file and return the lines between start_line and end_line, "+
			"numbered. At most %d lines are returned per read.", e.cfg.ReadWindow)).
		WithDefault("start_line", 1).
		WithDefault("end_line", 100).
		ReadOnly().
		Cacheable().
		MustBuild()
}

func (e *explorer) window(ctx context.Context, path string, start, end int) (string, error) {
	return e.reader.Window(ctx, path, start, end, e.cfg.ReadWindow)
}

// --- read_code_snippet ---

type readCodeSnippetArgs struct {
	FilePath string `json:"file_path" jsonschema:"the path of the file containing the node"`
	NodeName string `json:"node_name" jsonschema:"the name of the node to read"`
	NodeType string `json:"node_type" jsonschema:"class, function or variable"`
}

type snippet struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Code      string `json:"code"`
}

func (e *explorer) readCodeSnippetSpec() *tool.Spec {
	return tool.For(ReadCodeSnippet, func(ctx context.Context, _ tool.Call, args readCodeSnippetArgs) (tool.Result, error) {
		src, err := e.reader.Source(ctx, args.FilePath)
		if err != nil {
			return tool.Fail(err.Error()), nil
		}
		switch args.NodeType {
		case repo.KindClass, repo.KindFunction, repo.KindVariable:
		default:
			return tool.Fail(fmt.Sprintf("node_type must be class, function or variable, got %q", args.NodeType)), nil
		}
		sym, found, err := repo.FindSymbol(args.FilePath, src, args.NodeName, args.NodeType)
		if err != nil {
			return tool.Fail(err.Error()), nil
		}
		if !found {
			return tool.Fail(fmt.Sprintf("Node with name '%s' and type '%s' not found in file '%s'.",
				args.NodeName, args.NodeType, args.FilePath)), nil
		}
		code, err := e.window(ctx, args.FilePath, sym.StartLine, sym.EndLine)
		if err != nil {
			return tool.Fail("Error in reading code snippet: " + err.Error()), nil
		}
		return tool.OK(snippet{StartLine: sym.StartLine, EndLine: sym.EndLine, Code: code}), nil
	}).
		WithDescription("Read one declaration from a Go file by name. Types are read with node_type " +
			"'class', functions and methods with 'function', variables and constants with 'variable'.").
		ReadOnly().
		Cacheable().
		MustBuild()
}

// --- file_info ---

type fileInfoArgs struct {
	FilePath       string `json:"file_path" jsonschema:"the file or directory to describe"`
	IncludeOutline bool   `json:"include_outline,omitempty" jsonschema:"include the top-level declarations of the file; outlines are large, only ask when needed"`
}

type fileInfo struct {
	Path     string        `json:"path"`
	Type     string        `json:"type"`
	Size     int64         `json:"size,omitempty"`
	Lines    int           `json:"lines,omitempty"`
	Language string        `json:"language,omitempty"`
	Entries  int           `json:"entries,omitempty"`
	ModTime  string        `json:"mod_time"`
	Outline  []repo.Symbol `json:"outline,omitempty"`
}

func (e *explorer) fileInfoSpec() *tool.Spec {
	return tool.For(FileInfo, func(ctx context.Context, _ tool.Call, args fileInfoArgs) (tool.Result, error) {
		node, err := e.reader.Index(ctx).Lookup(args.FilePath)
		if err != nil {
			return tool.Fail(fmt.Sprintf("Path %s not found in the repository.", args.FilePath)), nil
		}
		info := fileInfo{Path: node.Path, ModTime: node.ModTime.Format(time.RFC3339)}
		if node.IsDir {
			info.Type = "directory"
			info.Entries = len(node.Children)
			return tool.OK(info), nil
		}

		info.Type = "file"
		info.Size = node.Size
		info.Language = repo.Language(node.Path)
		lines, err := e.reader.Lines(ctx, node.Path)
		if err != nil {
			return tool.Fail(err.Error()), nil
		}
		info.Lines = len(lines)
		if args.IncludeOutline {
			src, err := e.reader.Source(ctx, node.Path)
			if err != nil {
				return tool.Fail(err.Error()), nil
			}
			outline, err := repo.Outline(node.Path, src)
			if err != nil && !errors.Is(err, repo.ErrUnsupportedLanguage) {
				return tool.Fail(err.Error()), nil
			}
			info.Outline = outline
		}
		return tool.OK(info), nil
	}).
		WithDescription("Describe a file or directory: type, size, line count and language. " +
			"Optionally include the outline of a Go file.").
		WithDefault("include_outline", false).
		ReadOnly().
		Cacheable().
		MustBuild()
}

// --- dependencies ---

type dependenciesArgs struct {
	FilePath        string `json:"file_path" jsonschema:"the Go file whose imports to list"`
	OnlyRepoModules bool   `json:"only_repo_modules,omitempty" jsonschema:"only list imports that belong to this repository"`
}

type dependencies struct {
	Modules  []string `json:"dependency_modules"`
	Packages []string `json:"dependency_packages,omitempty"`
}

func (e *explorer) dependenciesSpec() *tool.Spec {
	return tool.For(Dependencies, func(ctx context.Context, _ tool.Call, args dependenciesArgs) (tool.Result, error) {
		src, err := e.reader.Source(ctx, args.FilePath)
		if err != nil {
			return tool.Fail(err.Error()), nil
		}
		imports, err := repo.Imports(args.FilePath, src)
		if err != nil {
			return tool.Fail(err.Error()), nil
		}
		module, err := repo.ModulePath(e.reader.Index(ctx).Root())
		if err != nil {
			return tool.Fail(err.Error()), nil
		}
		modules, packages := repo.SplitImports(module, imports)
		out := dependencies{Modules: modules}
		if !args.OnlyRepoModules {
			out.Packages = packages
		}
		return tool.OK(out), nil
	}).
		WithDescription("List the imports of a Go file, split into packages of this repository " +
			"and external packages.").
		WithDefault("only_repo_modules", true).
		ReadOnly().
		Cacheable().
		MustBuild()
}
