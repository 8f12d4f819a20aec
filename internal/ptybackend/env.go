package ptybackend

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// TermProgram identifies this host to spawned shells via the
// TERM_PROGRAM variable, the same way other terminal emulators do.
const (
	TermProgram        = "Hatcher"
	TermProgramVersion = "1.0.0"
)

// BuildBaseEnv composes the effective environment for a spawned shell:
// caller env merged over a sanitized parent env, plus the terminal
// identification variables every spawn carries. Absent/empty parent
// variables are filtered out so they never shadow a real value.
func BuildBaseEnv(opts SpawnOptions) []string {
	opts = opts.normalized()
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || v == "" {
			continue
		}
		merged[k] = v
	}
	for k, v := range opts.Env {
		if k == "" {
			continue
		}
		merged[k] = v
	}

	term := "xterm-256color"
	if runtime.GOOS == "windows" {
		term = "xterm"
	}
	merged["TERM"] = term
	merged["COLORTERM"] = "truecolor"
	merged["COLUMNS"] = strconv.Itoa(int(opts.Cols))
	merged["LINES"] = strconv.Itoa(int(opts.Rows))
	merged["TERM_PROGRAM"] = TermProgram
	merged["TERM_PROGRAM_VERSION"] = TermProgramVersion
	merged["FORCE_COLOR"] = "1"
	merged["LC_ALL"] = "en_US.UTF-8"
	merged["LANG"] = "en_US.UTF-8"

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}

// DefaultShell resolves the platform default shell: %ComSpec% or
// cmd.exe on Windows, $SHELL or /bin/bash on macOS/Linux, /bin/sh
// elsewhere.
func DefaultShell() string {
	switch runtime.GOOS {
	case "windows":
		if v := os.Getenv("ComSpec"); v != "" {
			return v
		}
		return "cmd.exe"
	case "darwin", "linux":
		if v := os.Getenv("SHELL"); v != "" {
			return v
		}
		return "/bin/bash"
	default:
		return "/bin/sh"
	}
}

// DefaultLoginArgs returns the login-mode argument list for the
// platform default shell.
func DefaultLoginArgs() []string {
	if runtime.GOOS == "windows" {
		return []string{}
	}
	return []string{"-l"}
}

// HomeDir resolves the caller's home directory: $HOME, else
// $USERPROFILE, else the current working directory.
func HomeDir() string {
	if v := os.Getenv("HOME"); v != "" {
		return v
	}
	if v := os.Getenv("USERPROFILE"); v != "" {
		return v
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// ShellFamily returns the lowercased base name used to pick login args,
// e.g. "/usr/local/bin/bash" -> "bash", "pwsh.exe" -> "pwsh".
func ShellFamily(shell string) string {
	s := strings.ToLower(shell)
	s = strings.TrimSuffix(s, ".exe")
	if idx := strings.LastIndexAny(s, `/\`); idx >= 0 {
		s = s[idx+1:]
	}
	return s
}

// LoginArgsFor returns the subprocess backend's interactive/login
// argument list for the given shell family.
func LoginArgsFor(shell string) []string {
	switch ShellFamily(shell) {
	case "bash":
		return []string{"--login", "-i"}
	case "zsh":
		return []string{"-l", "-i"}
	case "fish":
		return []string{"--login", "--interactive"}
	case "powershell", "pwsh", "windows powershell":
		return []string{"-NoLogo", "-NoProfile", "-Interactive"}
	case "cmd", "cmd.exe", "command.com":
		return []string{"/Q", "/K"}
	default:
		return []string{}
	}
}

// NormalizeLineEndings converts "\r\n" and lone "\r" to "\n", used by
// the subprocess backend to present cross-platform-consistent output.
// A lone "\r" at the very end of a chunk is dropped
// rather than turned into "\n": it marks a line the shell hasn't yet
// terminated (the matching "\n" may arrive in a later chunk), so
// turning it into a newline would split the line early.
func NormalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\r")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}
