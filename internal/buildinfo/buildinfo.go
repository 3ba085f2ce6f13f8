// Package buildinfo carries version metadata set with -ldflags -X.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the build metadata. A missing commit is taken from the VCS
// stamp the toolchain embeds, when present.
func Info() map[string]string {
	commit := Commit
	if commit == "" {
		commit = vcsRevision()
	}
	return map[string]string{
		"version": Version,
		"commit":  commit,
		"builtAt": BuiltAt,
	}
}

// String is the one-line form printed by the version command.
func String() string {
	info := Info()
	s := "fleetops " + info["version"]
	if info["commit"] != "" {
		s += fmt.Sprintf(" (%s)", info["commit"])
	}
	if info["builtAt"] != "" {
		s += " built " + info["builtAt"]
	}
	return s
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
