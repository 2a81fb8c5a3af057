// Package toolbridge builds the tool inventory and per-tool handlers for an
// agent session. Tool definitions are backend-agnostic; wire-shape rendering
// lives in schema.go and happens at request-build time only.
package toolbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	santhosh "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/keiko-bench/keiko/internal/models"
	"github.com/keiko-bench/keiko/internal/oracle"
)

// commandTimeout bounds a single run_command tool invocation. Validation
// commands have their own, longer timeout in the validation package.
const commandTimeout = 2 * time.Minute

// Handler executes one tool call. Input has already been validated against
// the tool's schema when a handler runs.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

type tool struct {
	def      models.ToolDefinition
	compiled *santhosh.Schema
	handler  Handler
}

// Bridge holds the tools available to one agent session, all scoped to a
// single workspace directory.
type Bridge struct {
	workspaceDir string
	oracle       oracle.Oracle
	logger       *slog.Logger
	tools        []*tool
	byName       map[string]*tool
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"description=Path of the file to read, relative to the workspace root"`
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"description=Path of the file to write, relative to the workspace root"`
	Content string `json:"content" jsonschema:"description=Full content to write"`
}

type runCommandArgs struct {
	Command string `json:"command" jsonschema:"description=Shell command to run in the workspace root"`
}

type listDirArgs struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list, relative to the workspace root; defaults to the root"`
}

type askUserArgs struct {
	Question string `json:"question" jsonschema:"description=Question to ask the user"`
}

// Build creates the bridge for a workspace. The four workspace tools are
// always registered; ask_user is added only when an oracle is supplied.
func Build(workspaceDir string, o oracle.Oracle, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		workspaceDir: workspaceDir,
		oracle:       o,
		logger:       logger,
		byName:       make(map[string]*tool),
	}

	if err := b.register("read_file", "Read a file from the workspace.", readFileArgs{}, b.readFile); err != nil {
		return nil, err
	}
	if err := b.register("write_file", "Create or overwrite a file in the workspace.", writeFileArgs{}, b.writeFile); err != nil {
		return nil, err
	}
	if err := b.register("run_command", "Run a shell command in the workspace root and return its output.", runCommandArgs{}, b.runCommand); err != nil {
		return nil, err
	}
	if err := b.register("list_dir", "List the entries of a workspace directory.", listDirArgs{}, b.listDir); err != nil {
		return nil, err
	}

	if o != nil {
		if err := b.register("ask_user", "Ask the user a clarifying question about the task.", askUserArgs{}, b.askUser); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Definitions returns the backend-agnostic tool inventory in registration
// order.
func (b *Bridge) Definitions() []models.ToolDefinition {
	defs := make([]models.ToolDefinition, 0, len(b.tools))
	for _, t := range b.tools {
		defs = append(defs, t.def)
	}
	return defs
}

// Call validates input against the tool's schema and runs its handler.
// Handler errors are returned to the caller so adapters can report them as
// tool-level errors without aborting the session.
func (b *Bridge) Call(ctx context.Context, name string, input json.RawMessage) (string, error) {
	t, ok := b.byName[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}

	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	value, err := santhosh.UnmarshalJSON(bytes.NewReader(input))
	if err != nil {
		return "", fmt.Errorf("tool %s: invalid JSON input: %w", name, err)
	}
	if err := t.compiled.Validate(value); err != nil {
		return "", fmt.Errorf("tool %s: input rejected by schema: %w", name, err)
	}

	return t.handler(ctx, input)
}

// QuestionLog exposes the oracle audit log; nil when no oracle is attached.
func (b *Bridge) QuestionLog() []models.OracleExchange {
	if b.oracle == nil {
		return nil
	}
	return b.oracle.QuestionLog()
}

func (b *Bridge) register(name, description string, argStruct any, handler Handler) error {
	raw, err := reflectSchema(argStruct)
	if err != nil {
		return fmt.Errorf("building schema for tool %s: %w", name, err)
	}

	doc, err := santhosh.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("reloading schema for tool %s: %w", name, err)
	}

	compiler := santhosh.NewCompiler()
	url := "keiko://tools/" + name + ".json"
	if err := compiler.AddResource(url, doc); err != nil {
		return fmt.Errorf("adding schema resource for tool %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("compiling schema for tool %s: %w", name, err)
	}

	t := &tool{
		def: models.ToolDefinition{
			Name:        name,
			Description: description,
			InputSchema: raw,
		},
		compiled: compiled,
		handler:  handler,
	}
	b.tools = append(b.tools, t)
	b.byName[name] = t
	return nil
}

// reflectSchema turns an argument struct into an inline JSON schema object.
func reflectSchema(argStruct any) (json.RawMessage, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	schema := r.Reflect(argStruct)
	schema.Version = ""
	return json.Marshal(schema)
}

// resolve maps a tool-supplied relative path into the workspace, rejecting
// absolute paths and anything escaping the workspace root.
func (b *Bridge) resolve(rel string) (string, error) {
	if rel == "" {
		return b.workspaceDir, nil
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be relative to the workspace", rel)
	}

	full := filepath.Clean(filepath.Join(b.workspaceDir, rel))
	base := filepath.Clean(b.workspaceDir)
	if full != base && !strings.HasPrefix(full, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return full, nil
}

func (b *Bridge) readFile(_ context.Context, input json.RawMessage) (string, error) {
	var args readFileArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", err
	}

	path, err := b.resolve(args.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args.Path, err)
	}
	return string(data), nil
}

func (b *Bridge) writeFile(_ context.Context, input json.RawMessage) (string, error) {
	var args writeFileArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", err
	}

	path, err := b.resolve(args.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", args.Path, err)
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", args.Path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), nil
}

func (b *Bridge) runCommand(ctx context.Context, input json.RawMessage) (string, error) {
	var args runCommandArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Command) == "" {
		return "", fmt.Errorf("empty command")
	}

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", args.Command)
	cmd.Dir = b.workspaceDir
	output, err := cmd.CombinedOutput()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", fmt.Errorf("running command: %w", err)
		}
	}

	b.logger.Debug("tool command finished", "command", args.Command, "exit_code", exitCode)
	return fmt.Sprintf("exit code: %d\n%s", exitCode, string(output)), nil
}

func (b *Bridge) listDir(_ context.Context, input json.RawMessage) (string, error) {
	var args listDirArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", err
	}

	path, err := b.resolve(args.Path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", args.Path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func (b *Bridge) askUser(_ context.Context, input json.RawMessage) (string, error) {
	var args askUserArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", err
	}
	return b.oracle.Ask(args.Question)
}
