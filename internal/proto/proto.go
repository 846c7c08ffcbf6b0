// Package proto holds the line protocol spoken on the game port: the
// handshake, command parsing and the fixed reply strings.
package proto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pokeescape/pokeescape-server/internal/version"
)

const (
	// ClientPrefix opens the first line of a game client connection.
	ClientPrefix = "POKE-ESCAPE_"
	// ServerPrefix opens the server greeting.
	ServerPrefix = "POKE-ESCAPE-SERVER_"
	// HTTPMarker in the first line hands the connection to the HTTP handler.
	HTTPMarker = "HTTP/1.1"
)

// Replies written to the client. Each is a single line.
const (
	ReplyMismatch = "Protocol mismatch.\n"
	ReplyBye      = "Bye\n"
	ReplyError    = "Error\n"
	ReplyUnknown  = "Unknown command\n"
	ReplyMapError = "error could not load map\n"
)

// ServerVersion is announced in the greeting. Overridden at build time with
// -ldflags "-X .../internal/proto.ServerVersion=...".
var ServerVersion = "0.1.0"

// MaxClientVersion is the newest client protocol this server accepts.
var MaxClientVersion = version.MustParse("0.1.0")

// ErrProtocolMismatch is returned when the client offers an unsupported version.
var ErrProtocolMismatch = errors.New("protocol mismatch")

// Route says where a connection goes after its first line.
type Route int

const (
	RouteMismatch Route = iota
	RouteSession
	RouteHTTP
)

func (r Route) String() string {
	switch r {
	case RouteSession:
		return "session"
	case RouteHTTP:
		return "http"
	default:
		return "mismatch"
	}
}

// Classify decides the route for a first line. The client prefix wins over
// the HTTP marker.
func Classify(line string) Route {
	switch {
	case strings.HasPrefix(line, ClientPrefix):
		return RouteSession
	case strings.Contains(line, HTTPMarker):
		return RouteHTTP
	default:
		return RouteMismatch
	}
}

// Greeting is the line sent to a game client before its version is checked.
func Greeting() string {
	return ServerPrefix + ServerVersion + "\n"
}

// ClientVersion parses the version that follows ClientPrefix.
func ClientVersion(line string) (version.Version, error) {
	rest, ok := strings.CutPrefix(line, ClientPrefix)
	if !ok {
		return version.Version{}, fmt.Errorf("%w: missing %s prefix", ErrProtocolMismatch, ClientPrefix)
	}
	v, err := version.Parse(rest)
	if err != nil {
		return version.Version{}, fmt.Errorf("client version: %w", err)
	}
	return v, nil
}

// Compatible reports whether a client version satisfies "<= MaxClientVersion".
// Pre-release clients are rejected unless MaxClientVersion is itself a
// pre-release of the same release.
func Compatible(v version.Version) bool {
	return v.Allowed(MaxClientVersion)
}

// MapReply formats a successful map response.
func MapReply(payload string) string {
	return "map " + payload + "\n"
}

// CommandKind identifies a session command.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdQuit
	CmdIdentify
	CmdJoin
	CmdMap
)

func (k CommandKind) String() string {
	switch k {
	case CmdQuit:
		return "quit"
	case CmdIdentify:
		return "identify"
	case CmdJoin:
		return "join"
	case CmdMap:
		return "map"
	default:
		return "unknown"
	}
}

// Command is one parsed session line.
type Command struct {
	Kind CommandKind
	Arg  string
}

var keywords = []struct {
	word string
	kind CommandKind
}{
	{"quit", CmdQuit},
	{"identify", CmdIdentify},
	{"join", CmdJoin},
	{"map", CmdMap},
}

// ParseCommand matches the start of the trimmed line against the command
// keywords, ignoring case. Whatever follows the keyword, trimmed, is the
// argument; its case is preserved.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	lower := strings.ToLower(line)
	for _, kw := range keywords {
		if strings.HasPrefix(lower, kw.word) {
			return Command{Kind: kw.kind, Arg: strings.TrimSpace(line[len(kw.word):])}
		}
	}
	return Command{Kind: CmdUnknown, Arg: line}
}
