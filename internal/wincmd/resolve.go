package wincmd

import (
	"os"
	"strings"
)

// fileExists is swapped out by tests.
var fileExists = func(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// ResolveApp resolves app to the path handed to CreateProcessW.
//
// Absolute paths are used as-is, except that under WoW64 a path inside
// %WINDIR%\System32 is remapped to %WINDIR%\Sysnative when that file
// exists (the 32-bit view would silently substitute 32-bit binaries),
// and outside WoW64 a Sysnative path is mapped back to System32.
// Relative paths with a directory component resolve against cwd.
// Bare names are searched on PATH, probing name, name.com, name.exe in
// each directory; under WoW64 a Sysnative twin is searched just before
// any System32 entry. If nothing matches, cwd\app is returned and
// CreateProcessW gets to report the real error.
func ResolveApp(app, cwd string, env map[string]string) string {
	if app == "" {
		return app
	}

	wow64 := getEnv(env, "PROCESSOR_ARCHITEW6432") != ""
	windir := getEnv(env, "WINDIR")
	if windir == "" {
		windir = getEnv(env, "SystemRoot")
	}

	if isAbs(app) {
		if windir == "" {
			return app
		}
		if wow64 {
			if remapped, ok := remapPrefix(app, joinPath(windir, `System32`)+`\`, joinPath(windir, `Sysnative`)+`\`); ok && fileExists(remapped) {
				return remapped
			}
		} else if remapped, ok := remapPrefix(app, joinPath(windir, `Sysnative`)+`\`, joinPath(windir, `System32`)+`\`); ok {
			return remapped
		}
		return app
	}

	if strings.ContainsAny(app, `\/`) {
		return joinPath(cwd, app)
	}

	for _, dir := range searchDirs(getEnv(env, "PATH"), wow64) {
		for _, name := range []string{app, app + ".com", app + ".exe"} {
			candidate := joinPath(dir, name)
			if fileExists(candidate) {
				return candidate
			}
		}
	}

	return joinPath(cwd, app)
}

// searchDirs splits PATH and, under WoW64, inserts the Sysnative twin
// immediately before each System32 entry.
func searchDirs(pathVal string, wow64 bool) []string {
	var dirs []string
	for _, dir := range strings.Split(pathVal, ";") {
		if dir == "" {
			continue
		}
		if wow64 {
			lower := strings.ToLower(dir)
			if i := strings.Index(lower, `\system32`); i >= 0 {
				dirs = append(dirs, dir[:i]+`\Sysnative`+dir[i+len(`\system32`):])
			}
		}
		dirs = append(dirs, dir)
	}
	return dirs
}

func remapPrefix(path, from, to string) (string, bool) {
	if len(path) < len(from) {
		return "", false
	}
	if !strings.EqualFold(path[:len(from)], from) {
		return "", false
	}
	return to + path[len(from):], true
}

// getEnv reads name from env with Windows' case-insensitive name
// matching, falling back to the process environment.
func getEnv(env map[string]string, name string) string {
	for k, v := range env {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return os.Getenv(name)
}

func isAbs(path string) bool {
	if strings.HasPrefix(path, `\\`) {
		return true
	}
	return len(path) >= 3 && path[1] == ':' && (path[2] == '\\' || path[2] == '/')
}

func joinPath(dir, name string) string {
	dir = strings.TrimRight(dir, `\`)
	return dir + `\` + name
}
