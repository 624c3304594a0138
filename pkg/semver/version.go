// Package semver checks client-declared protocol versions.
package semver

import (
	"fmt"
	"regexp"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:version"

// shapeRegex accepts "major.minor" and "major.minor.patch".
var shapeRegex = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)

// ValidShape reports whether v looks like a semantic version.
func ValidShape(v string) bool {
	return shapeRegex.MatchString(v)
}

// Compatible reports whether a server at serverVersion satisfies a client
// that declared clientVersion. The client version is read as a caret range,
// so the server must share its major and be at least as new.
func Compatible(clientVersion, serverVersion string) (bool, error) {
	server, err := masterminds.NewVersion(serverVersion)
	if err != nil {
		return false, fmt.Errorf("%s - invalid server version %q: %w", logPrefix, serverVersion, err)
	}
	constraint, err := masterminds.NewConstraint("^" + clientVersion)
	if err != nil {
		return false, fmt.Errorf("%s - invalid client version %q: %w", logPrefix, clientVersion, err)
	}
	return constraint.Check(server), nil
}
