package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-ism7/internal/auth"
	"github.com/nerrad567/gray-logic-ism7/internal/trace"
)

// runTrace prints the events of a telegram capture as JSON lines.
//
// Usage: ism7bridge trace [-device ID] [-direction rx|tx] [-telegram N] [-since RFC3339] FILE
func runTrace(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	device := fs.String("device", "", "only events of this device")
	direction := fs.String("direction", "", "only rx or tx events")
	telegram := fs.String("telegram", "", "only this telegram number (decimal or 0x hex)")
	since := fs.String("since", "", "only events at or after this RFC3339 time")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ism7bridge trace [flags] FILE")
	}

	filter, err := buildTraceFilter(*device, *direction, *telegram, *since)
	if err != nil {
		return err
	}

	rd, err := trace.Open(fs.Arg(0), filter)
	if err != nil {
		return err
	}
	defer rd.Close() //nolint:errcheck // read-only file

	if _, err := trace.Dump(rd, stdout); err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}
	return nil
}

// buildTraceFilter converts the trace flags into a trace.Filter.
func buildTraceFilter(device, direction, telegram, since string) (trace.Filter, error) {
	filter := trace.Filter{DeviceID: device}

	if direction != "" {
		d, err := trace.ParseDirection(direction)
		if err != nil {
			return trace.Filter{}, err
		}
		filter.Direction = &d
	}
	if telegram != "" {
		n, err := strconv.ParseUint(telegram, 0, 16)
		if err != nil {
			return trace.Filter{}, fmt.Errorf("invalid telegram number %q: %w", telegram, err)
		}
		nr := uint16(n)
		filter.Telegram = &nr
	}
	if since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return trace.Filter{}, fmt.Errorf("invalid since time %q: %w", since, err)
		}
		filter.Since = ts
	}
	return filter, nil
}

// runHashPassword prints an argon2id hash for a security.users entry.
// The password comes from the first argument or, if absent, the first
// line of stdin.
func runHashPassword(args []string, stdin io.Reader, stdout io.Writer) error {
	var password string
	switch len(args) {
	case 0:
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	case 1:
		password = args[0]
	default:
		return errors.New("usage: ism7bridge hash-password [PASSWORD]")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}
