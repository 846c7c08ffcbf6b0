// Command smoke runs one scripted client session against a running server:
// handshake, identify, join, map, quit. With -ws it uses the websocket
// endpoint instead of the raw line protocol.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/pokeescape/pokeescape-server/internal/proto"
)

type options struct {
	addr  string
	user  string
	group string
	mapID string
	ws    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.addr, "addr", "127.0.0.1:1996", "server address")
	flag.StringVar(&opts.user, "user", "tester", "client id to identify with")
	flag.StringVar(&opts.group, "group", "lobby", "group to join")
	flag.StringVar(&opts.mapID, "map", "forest", "map to request")
	flag.BoolVar(&opts.ws, "ws", false, "use the /ws endpoint")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	run := runTCP
	if opts.ws {
		run = runWS
	}
	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("smoke: %v", err)
	}
}

func script(opts options) []string {
	return []string{
		"identify " + opts.user,
		"join " + opts.group,
		"map " + opts.mapID,
		"quit",
	}
}

// runTCP speaks the line protocol and prints every server line to out.
func runTCP(ctx context.Context, opts options, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	r := bufio.NewReader(conn)

	readLine := func() (string, error) {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
		line = strings.TrimSuffix(line, "\n")
		fmt.Fprintf(out, "< %s\n", line)
		return line, nil
	}
	send := func(line string) error {
		fmt.Fprintf(out, "> %s\n", line)
		_, err := io.WriteString(conn, line+"\n")
		return err
	}

	if err := send(proto.ClientPrefix + proto.MaxClientVersion.String()); err != nil {
		return err
	}
	greeting, err := readLine()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(greeting, proto.ServerPrefix) {
		return fmt.Errorf("unexpected greeting %q", greeting)
	}

	for _, line := range script(opts) {
		if err := send(line); err != nil {
			return err
		}
		if expectsReply(line) {
			if _, err := readLine(); err != nil {
				return err
			}
		}
	}
	return nil
}

// runWS runs the same script over the websocket endpoint.
func runWS(ctx context.Context, opts options, out io.Writer) error {
	url := opts.addr
	if !strings.Contains(url, "://") {
		url = "ws://" + url + "/ws"
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	for _, line := range script(opts) {
		fmt.Fprintf(out, "> %s\n", line)
		if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		if expectsReply(line) {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return fmt.Errorf("read: %w", err)
			}
			fmt.Fprintf(out, "< %s\n", data)
		}
	}
	return nil
}

func expectsReply(line string) bool {
	switch proto.ParseCommand(line).Kind {
	case proto.CmdMap, proto.CmdQuit:
		return true
	default:
		return false
	}
}
