// Package main provides the interactive client for the toy-kv server.
// It speaks the length-prefixed frame protocol over TCP and offers a
// line-edited command loop with history.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/chux0519/toy-kv/internal/transport"
)

const responseTimeout = 5 * time.Second

// client multiplexes one connection: the read loop answers server
// heartbeats itself and hands every other response to the prompt loop.
type client struct {
	conn    net.Conn
	writeMu sync.Mutex
	resps   chan *transport.Response
	done    chan struct{}
}

func dial(addr string) (*client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c := &client{
		conn:  conn,
		resps: make(chan *transport.Response, 1),
		done:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *client) readLoop() {
	defer close(c.done)
	for {
		var resp transport.Response
		if err := transport.ReadFrame(c.conn, &resp); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Debug("client: read failed", "error", err)
			}
			return
		}
		if resp.Op == transport.OpPing {
			// Answer the server heartbeat so the session stays alive.
			c.send(&transport.Request{Op: transport.OpPing})
			continue
		}
		select {
		case c.resps <- &resp:
		default:
			slog.Warn("client: dropping unexpected response", "op", resp.Op)
		}
	}
}

func (c *client) send(req *transport.Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return transport.WriteFrame(c.conn, req)
}

func (c *client) call(req *transport.Request) (*transport.Response, error) {
	if err := c.send(req); err != nil {
		return nil, err
	}
	select {
	case resp := <-c.resps:
		return resp, nil
	case <-c.done:
		return nil, errors.New("connection closed")
	case <-time.After(responseTimeout):
		return nil, errors.New("timed out waiting for response")
	}
}

func (c *client) close() {
	c.conn.Close()
	<-c.done
}

func main() {
	addr := pflag.String("addr", "127.0.0.1:12333", "server address")
	pflag.Parse()

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})
	slog.SetDefault(slog.New(handler))

	c, err := dial(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer c.close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("toy-kv client - connected to", *addr)
	printUsage()

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("Goodbye!")
				return
			}
			log.Fatalf("Failed to read input: %v", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		parts := strings.Fields(input)
		switch strings.ToUpper(parts[0]) {
		case "GET":
			runGet(c, parts)
		case "PUT":
			runPut(c, parts)
		case "DEL", "DELETE":
			runDelete(c, parts)
		case "SCAN":
			runScan(c, parts)
		case "EXIT", "QUIT":
			fmt.Println("Goodbye!")
			return
		default:
			fmt.Printf("Unknown command: %s\n", parts[0])
			printUsage()
		}
	}
}

func printUsage() {
	fmt.Println("Commands: GET <key>, PUT <key> <value>, DEL <key>, SCAN <start> <end>, EXIT")
}

func runGet(c *client, parts []string) {
	if len(parts) < 2 {
		fmt.Println("Usage: GET <key>")
		return
	}
	resp, err := c.call(&transport.Request{Op: transport.OpGet, Key: parts[1]})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	switch {
	case resp.Err != "":
		fmt.Printf("Error: %s\n", resp.Err)
	case !resp.Found:
		fmt.Println("(nil)")
	default:
		fmt.Println(resp.Value)
	}
}

func runPut(c *client, parts []string) {
	if len(parts) < 3 {
		fmt.Println("Usage: PUT <key> <value>")
		return
	}
	resp, err := c.call(&transport.Request{
		Op:    transport.OpPut,
		Key:   parts[1],
		Value: strings.Join(parts[2:], " "),
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if resp.Err != "" {
		fmt.Printf("Error: %s\n", resp.Err)
		return
	}
	fmt.Println("OK")
}

func runDelete(c *client, parts []string) {
	if len(parts) < 2 {
		fmt.Println("Usage: DEL <key>")
		return
	}
	resp, err := c.call(&transport.Request{Op: transport.OpDelete, Key: parts[1]})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if resp.Err != "" {
		fmt.Printf("Error: %s\n", resp.Err)
		return
	}
	fmt.Println("OK")
}

func runScan(c *client, parts []string) {
	if len(parts) < 3 {
		fmt.Println("Usage: SCAN <start> <end>")
		return
	}
	start, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		fmt.Printf("Error: invalid start: %v\n", err)
		return
	}
	end, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		fmt.Printf("Error: invalid end: %v\n", err)
		return
	}
	resp, err := c.call(&transport.Request{
		Op:    transport.OpScan,
		Start: uint32(start),
		End:   uint32(end),
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if resp.Err != "" {
		fmt.Printf("Error: %s\n", resp.Err)
		return
	}
	for _, pair := range resp.Pairs {
		fmt.Printf("%s = %s\n", pair.Key, pair.Value)
	}
	fmt.Printf("(%d pairs)\n", len(resp.Pairs))
}
