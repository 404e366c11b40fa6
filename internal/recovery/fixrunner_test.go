package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixDir(t *testing.T, registry string, scripts map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixes.yaml"), []byte(registry), 0o644))
	for name, body := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755))
	}
	return dir
}

func TestScriptFixRunnerRunsRegisteredScript(t *testing.T) {
	dir := writeFixDir(t,
		"fixes:\n  syntax_error: fix_syntax.sh\n",
		map[string]string{
			"fix_syntax.sh": "echo \"formatting $SODA_FIX_ERROR_KIND\"\necho done\n",
		})

	r := NewScriptFixRunner(dir)
	actions, err := r.Run(context.Background(), FixSyntaxError, BuildFailure{Stage: "compile", Message: "bad token"})
	require.NoError(t, err)

	assert.Contains(t, actions, "ran fix script fix_syntax.sh")
	assert.Contains(t, actions, "formatting build_failure")
	assert.Contains(t, actions, "done")
}

func TestScriptFixRunnerUnregisteredFix(t *testing.T) {
	dir := writeFixDir(t, "fixes: {}\n", nil)
	r := NewScriptFixRunner(dir)
	_, err := r.Run(context.Background(), FixTestRepair, TestFailure{Suite: "unit"})
	assert.ErrorContains(t, err, "no script registered")
}

func TestScriptFixRunnerRejectsInvalidSyntax(t *testing.T) {
	dir := writeFixDir(t,
		"fixes:\n  test_repair: broken.sh\n",
		map[string]string{"broken.sh": "if then fi ((\n"})

	r := NewScriptFixRunner(dir)
	_, err := r.Run(context.Background(), FixTestRepair, TestFailure{Suite: "unit"})
	assert.ErrorContains(t, err, "invalid syntax")
}

func TestScriptFixRunnerReportsScriptFailure(t *testing.T) {
	dir := writeFixDir(t,
		"fixes:\n  build_repair: fail.sh\n",
		map[string]string{"fail.sh": "echo attempting repair\nexit 3\n"})

	r := NewScriptFixRunner(dir)
	actions, err := r.Run(context.Background(), FixBuildRepair, BuildFailure{Stage: "link"})
	require.Error(t, err)
	assert.Contains(t, actions, "attempting repair")
}

func TestScriptFixRunnerMissingRegistry(t *testing.T) {
	r := NewScriptFixRunner(t.TempDir())
	_, err := r.Run(context.Background(), FixSyntaxError, BuildFailure{Stage: "compile"})
	assert.Error(t, err)
}
