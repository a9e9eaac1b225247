package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"aquaflow.game/internal/protocol"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// commandCmd sends one session-level command (PAUSE, RESUME, RESET, ...).
func commandCmd(args []string) {
	fs := flag.NewFlagSet("cmd", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin cmd [-url U] PAUSE|RESUME|RESET|REFRESH_DRAFT")
		os.Exit(2)
	}
	ack, status, err := postCommand(&http.Client{Timeout: 10 * time.Second}, *baseURL, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	b, _ := json.Marshal(ack)
	fmt.Println(string(b))
	if status/100 != 2 {
		os.Exit(1)
	}
}

func postCommand(cl *http.Client, baseURL, name string) (protocol.AckMsg, int, error) {
	var ack protocol.AckMsg
	body, _ := json.Marshal(protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		Ref:             "admin",
		Cmd:             strings.ToUpper(strings.TrimSpace(name)),
	})
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/v1/commands"
	resp, err := cl.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		return ack, 0, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return ack, resp.StatusCode, fmt.Errorf("decode ack: %w", err)
	}
	return ack, resp.StatusCode, nil
}
