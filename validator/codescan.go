package validator

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
)

// FindingKind categorizes a code scan finding.
type FindingKind string

const (
	FindingForbiddenImport FindingKind = "forbidden_import"
	FindingDangerousCall   FindingKind = "dangerous_call"
	FindingFilesystemEsc   FindingKind = "filesystem_escape"
	FindingCgo             FindingKind = "cgo"
	FindingParseError      FindingKind = "parse_error"
	FindingPathEscape      FindingKind = "path_escape"
)

// Finding is one disallowed construct.
type Finding struct {
	Kind     FindingKind `json:"kind"`
	Location string      `json:"location"`
	Detail   string      `json:"detail"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s at %s: %s", f.Kind, f.Location, f.Detail)
}

// ScanReport lists every finding across the scanned files.
type ScanReport struct {
	Files    int       `json:"files"`
	Imports  int       `json:"imports"`
	Calls    int       `json:"calls"`
	Findings []Finding `json:"findings,omitempty"`
}

// Safe reports whether nothing was found.
func (r *ScanReport) Safe() bool { return len(r.Findings) == 0 }

// ScanOptions tunes the disallowed sets.
type ScanOptions struct {
	ForbidReflect bool
	ExtraImports  []string
}

var forbiddenImports = map[string]string{
	"os/exec":     "process execution",
	"syscall":     "raw system calls",
	"unsafe":      "memory unsafety",
	"plugin":      "dynamic code loading",
	"runtime/cgo": "cgo runtime",
}

// forbiddenCalls is keyed by import path, then function name.
var forbiddenCalls = map[string]map[string]string{
	"os": {
		"RemoveAll":    "recursive deletion",
		"Chdir":        "process working directory change",
		"Setenv":       "process environment mutation",
		"Unsetenv":     "process environment mutation",
		"Clearenv":     "process environment mutation",
		"Exit":         "process termination",
		"StartProcess": "process execution",
	},
	"os/exec": {
		"Command":        "process execution",
		"CommandContext": "process execution",
	},
	"syscall": {
		"Exec":     "process execution",
		"ForkExec": "process execution",
	},
	"runtime": {
		"Goexit": "goroutine termination",
	},
}

// fileFuncs take a path as first argument.
var fileFuncs = map[string]bool{
	"Open": true, "OpenFile": true, "Create": true, "ReadFile": true,
	"WriteFile": true, "Remove": true, "Rename": true, "ReadDir": true,
}

// CodeScanner statically analyzes Go sources resolved under a root directory.
type CodeScanner struct {
	root    string
	imports map[string]string
}

// NewCodeScanner creates a scanner for files under root.
func NewCodeScanner(root string, opts ScanOptions) *CodeScanner {
	imports := make(map[string]string, len(forbiddenImports)+len(opts.ExtraImports)+1)
	for k, v := range forbiddenImports {
		imports[k] = v
	}
	if opts.ForbidReflect {
		imports["reflect"] = "reflection"
	}
	for _, p := range opts.ExtraImports {
		imports[p] = "disallowed by configuration"
	}
	return &CodeScanner{root: root, imports: imports}
}

// ScanFiles parses each file relative to the scanner root. Paths that would
// leave the root are reported as findings rather than opened.
func (s *CodeScanner) ScanFiles(ctx context.Context, files []string) (*ScanReport, error) {
	root, err := os.OpenRoot(s.root)
	if err != nil {
		return nil, fmt.Errorf("open source root %s: %w", s.root, err)
	}
	defer root.Close()

	report := &ScanReport{}
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := readUnder(root, name)
		if err != nil {
			report.Findings = append(report.Findings, Finding{Kind: FindingPathEscape, Location: name, Detail: err.Error()})
			continue
		}
		s.scan(name, src, report)
		report.Files++
	}
	return report, nil
}

func readUnder(root *os.Root, name string) ([]byte, error) {
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ScanSource analyzes a single in-memory file.
func (s *CodeScanner) ScanSource(filename string, src []byte) *ScanReport {
	report := &ScanReport{}
	s.scan(filename, src, report)
	report.Files = 1
	return report
}

func (s *CodeScanner) scan(filename string, src []byte, report *ScanReport) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		report.Findings = append(report.Findings, Finding{Kind: FindingParseError, Location: filename, Detail: err.Error()})
		return
	}

	// local import name -> import path
	locals := make(map[string]string)
	for _, imp := range file.Imports {
		p, _ := strconv.Unquote(imp.Path.Value)
		report.Imports++
		if p == "C" {
			report.Findings = append(report.Findings, Finding{Kind: FindingCgo, Location: fset.Position(imp.Pos()).String(), Detail: `import "C"`})
			continue
		}
		if why, bad := s.imports[p]; bad {
			report.Findings = append(report.Findings, Finding{
				Kind:     FindingForbiddenImport,
				Location: fset.Position(imp.Pos()).String(),
				Detail:   fmt.Sprintf("%s (%s)", p, why),
			})
		}
		local := path.Base(p)
		if imp.Name != nil {
			local = imp.Name.Name
		}
		locals[local] = p
	}

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		report.Calls++
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pkg, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		importPath, ok := locals[pkg.Name]
		if !ok {
			return true
		}
		loc := fset.Position(call.Pos()).String()
		if why, bad := forbiddenCalls[importPath][sel.Sel.Name]; bad {
			report.Findings = append(report.Findings, Finding{
				Kind:     FindingDangerousCall,
				Location: loc,
				Detail:   fmt.Sprintf("%s.%s (%s)", importPath, sel.Sel.Name, why),
			})
		}
		if importPath == "os" && fileFuncs[sel.Sel.Name] && len(call.Args) > 0 {
			if lit, ok := call.Args[0].(*ast.BasicLit); ok && lit.Kind == token.STRING {
				p, _ := strconv.Unquote(lit.Value)
				if escapesSandbox(p) {
					report.Findings = append(report.Findings, Finding{
						Kind:     FindingFilesystemEsc,
						Location: loc,
						Detail:   fmt.Sprintf("os.%s(%q)", sel.Sel.Name, p),
					})
				}
			}
		}
		return true
	})
}

func escapesSandbox(p string) bool {
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "~") {
		return true
	}
	return slices.Contains(strings.Split(strings.ReplaceAll(p, "\\", "/"), "/"), "..")
}
