package version

import (
	"runtime/debug"
	"strings"
)

const repository = "https://github.com/gokrazy/bootpatch"

func readParts(info *debug.BuildInfo) (revision string, modified, ok bool) {
	settings := make(map[string]string)
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	// Built from a local VCS checkout.
	if rev, ok := settings["vcs.revision"]; ok {
		return rev, settings["vcs.modified"] == "true", true
	}
	// Installed with go install, info.Main.Version is a pseudo-version like
	// v0.0.0-20230107144322-7a5757f46310 or a release tag like v1.2.0.
	v := info.Main.Version
	if v == "" || v == "(devel)" {
		return "", false, false
	}
	if idx := strings.LastIndexByte(v, '-'); idx > -1 {
		return v[idx+1:], false, true
	}
	return v, false, true
}

func format(info *debug.BuildInfo, ok bool) string {
	if !ok {
		return "<not okay>"
	}
	revision, modified, ok := readParts(info)
	if !ok {
		return "<unknown revision>"
	}
	if strings.HasPrefix(revision, "v") {
		return repository + "/releases/tag/" + revision
	}
	modifiedSuffix := ""
	if modified {
		modifiedSuffix = " (modified)"
	}
	return repository + "/commit/" + revision + modifiedSuffix
}

// Read returns a link to the source revision this binary was built from.
func Read() string {
	info, ok := debug.ReadBuildInfo()
	return format(info, ok)
}
