package ptybackend

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeLineEndingsCRLF(t *testing.T) {
	require.Equal(t, "Line 1\nLine 2", NormalizeLineEndings("Line 1\r\nLine 2\r"))
}

func TestNormalizeLineEndingsEmbeddedLoneCR(t *testing.T) {
	require.Equal(t, "abc\ndef", NormalizeLineEndings("abc\rdef"))
}

func TestNormalizeLineEndingsNoChange(t *testing.T) {
	require.Equal(t, "plain text\n", NormalizeLineEndings("plain text\n"))
}

func TestNormalizeLineEndingsEmpty(t *testing.T) {
	require.Equal(t, "", NormalizeLineEndings(""))
}

func TestBuildBaseEnvDoesNotDropHostEnv(t *testing.T) {
	require.NoError(t, os.Setenv("TERMCORE_TEST_VAR", "present"))
	defer os.Unsetenv("TERMCORE_TEST_VAR")

	env := BuildBaseEnv(SpawnOptions{})

	require.True(t, containsKV(env, "TERMCORE_TEST_VAR", "present"))
}

func TestBuildBaseEnvAppliesTerminalIdentity(t *testing.T) {
	env := BuildBaseEnv(SpawnOptions{Cols: 120, Rows: 40})

	require.True(t, containsKV(env, "COLORTERM", "truecolor"))
	require.True(t, containsKV(env, "COLUMNS", "120"))
	require.True(t, containsKV(env, "LINES", "40"))
	require.True(t, containsKV(env, "TERM_PROGRAM", TermProgram))
	require.True(t, containsKV(env, "FORCE_COLOR", "1"))
}

func TestBuildBaseEnvOverridesWinOverHostEnv(t *testing.T) {
	require.NoError(t, os.Setenv("TERMCORE_TEST_OVERRIDE", "from-host"))
	defer os.Unsetenv("TERMCORE_TEST_OVERRIDE")

	env := BuildBaseEnv(SpawnOptions{Env: map[string]string{"TERMCORE_TEST_OVERRIDE": "from-caller"}})

	require.True(t, containsKV(env, "TERMCORE_TEST_OVERRIDE", "from-caller"))
}

func TestBuildBaseEnvSkipsEmptyOverrideKey(t *testing.T) {
	env := BuildBaseEnv(SpawnOptions{Env: map[string]string{"": "ignored"}})

	for _, kv := range env {
		require.False(t, strings.HasPrefix(kv, "="))
	}
}

func TestLoginArgsForShellFamilies(t *testing.T) {
	require.Equal(t, []string{"--login", "-i"}, LoginArgsFor("/bin/bash"))
	require.Equal(t, []string{"-l", "-i"}, LoginArgsFor("/usr/bin/zsh"))
	require.Equal(t, []string{"--login", "--interactive"}, LoginArgsFor("fish"))
	require.Equal(t, []string{"-NoLogo", "-NoProfile", "-Interactive"}, LoginArgsFor("pwsh.exe"))
	require.Equal(t, []string{"/Q", "/K"}, LoginArgsFor(`C:\Windows\System32\cmd.exe`))
	require.Equal(t, []string{}, LoginArgsFor("/bin/dash"))
}

func TestShellFamilyStripsPathAndExtension(t *testing.T) {
	require.Equal(t, "bash", ShellFamily("/usr/local/bin/bash"))
	require.Equal(t, "pwsh", ShellFamily(`C:\Tools\pwsh.exe`))
}

func TestHomeDirPrefersHOME(t *testing.T) {
	oldHome, hadHome := os.LookupEnv("HOME")
	oldProfile, hadProfile := os.LookupEnv("USERPROFILE")
	defer restoreEnv(t, "HOME", oldHome, hadHome)
	defer restoreEnv(t, "USERPROFILE", oldProfile, hadProfile)

	require.NoError(t, os.Setenv("HOME", "/home/tester"))
	require.NoError(t, os.Unsetenv("USERPROFILE"))

	require.Equal(t, "/home/tester", HomeDir())
}

func TestHomeDirFallsBackToUserProfile(t *testing.T) {
	oldHome, hadHome := os.LookupEnv("HOME")
	oldProfile, hadProfile := os.LookupEnv("USERPROFILE")
	defer restoreEnv(t, "HOME", oldHome, hadHome)
	defer restoreEnv(t, "USERPROFILE", oldProfile, hadProfile)

	require.NoError(t, os.Unsetenv("HOME"))
	require.NoError(t, os.Setenv("USERPROFILE", `C:\Users\tester`))

	require.Equal(t, `C:\Users\tester`, HomeDir())
}

func containsKV(env []string, key, value string) bool {
	target := key + "=" + value
	for _, kv := range env {
		if kv == target {
			return true
		}
	}
	return false
}

func restoreEnv(t *testing.T, key, value string, had bool) {
	t.Helper()
	if had {
		require.NoError(t, os.Setenv(key, value))
	} else {
		require.NoError(t, os.Unsetenv(key))
	}
}
