package recovery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

const fixExecutionTimeout = 5 * time.Minute

// fixRegistry is the on-disk fixes.yaml format: fix type to script file.
type fixRegistry struct {
	Fixes map[FixType]string `yaml:"fixes"`
}

// ScriptFixRunner executes shell scripts registered per fix type. Scripts
// are validated with a shell parser before running, and run with the
// classified error exposed via SODA_FIX_* environment variables.
type ScriptFixRunner struct {
	dir    string
	reg    fixRegistry
	runFor time.Duration
}

// NewScriptFixRunner loads the fix registry from dir/fixes.yaml. A missing
// registry file yields a runner that fails every fix with a clear error
// rather than failing construction; fixes are optional equipment.
func NewScriptFixRunner(dir string) *ScriptFixRunner {
	r := &ScriptFixRunner{dir: dir, runFor: fixExecutionTimeout}

	data, err := os.ReadFile(filepath.Join(dir, "fixes.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read fix registry", "dir", dir, "error", err)
		}
		return r
	}
	if err := yaml.Unmarshal(data, &r.reg); err != nil {
		slog.Warn("failed to parse fix registry", "dir", dir, "error", err)
		r.reg = fixRegistry{}
	}
	return r
}

func (r *ScriptFixRunner) Run(ctx context.Context, fix FixType, e ErrorType) ([]string, error) {
	scriptName, ok := r.reg.Fixes[fix]
	if !ok {
		return nil, fmt.Errorf("no script registered for fix type %s", fix)
	}

	scriptPath := filepath.Join(r.dir, scriptName)
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read fix script %s: %w", scriptName, err)
	}

	file, err := syntax.NewParser().Parse(bytes.NewReader(src), scriptName)
	if err != nil {
		return nil, fmt.Errorf("fix script %s has invalid syntax: %w", scriptName, err)
	}

	var stdout, stderr bytes.Buffer
	env := append(os.Environ(),
		"SODA_FIX_TYPE="+string(fix),
		"SODA_FIX_ERROR_KIND="+string(e.Kind()),
		"SODA_FIX_ERROR_DETAIL="+e.Describe(),
	)
	runner, err := interp.New(
		interp.StdIO(nil, &stdout, &stderr),
		interp.Env(expand.ListEnviron(env...)),
		interp.Dir(r.dir),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create script runner: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.runFor)
	defer cancel()

	actions := []string{fmt.Sprintf("ran fix script %s", scriptName)}
	runErr := runner.Run(runCtx, file)
	actions = append(actions, outputLines(stdout.String())...)
	if runErr != nil {
		if stderr.Len() > 0 {
			actions = append(actions, "stderr: "+strings.TrimSpace(stderr.String()))
		}
		return actions, fmt.Errorf("fix script %s failed: %w", scriptName, runErr)
	}
	return actions, nil
}

func outputLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
