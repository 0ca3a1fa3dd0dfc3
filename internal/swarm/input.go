package swarm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/orchestrator/swarmgate/internal/config"
	"github.com/orchestrator/swarmgate/internal/orcherrors"
)

// maxInputItems bounds how many items a single swarm run will accept
// (spec §4.4, §5 Backpressure: resolved count >10,000 fails TooManyItems).
const maxInputItems = 10000

// backtickCommandRe extracts a `` `cmd` `` inline command from a message,
// used when a swarm is triggered ad hoc without a configured input.command.
var backtickCommandRe = regexp.MustCompile("`([^`]+)`")

// ResolveInput determines the list of items a swarm run will map over, in
// priority order (spec §4.4 Input Resolution):
//  1. an inline JSON array literal found in the message
//  2. an attached file's contents, parsed per input.type (newline-delimited
//     items by default, or one JSON array for "json_array")
//  3. the SwarmSpec's configured input.command, with {{param}} substituted
//     from the message
//  4. a backtick-delimited inline command found in the message
//
// Returns orcherrors.ErrNoInput if none resolve, or orcherrors.ErrTooManyItems
// if the resolved set exceeds maxInputItems.
func ResolveInput(spec config.SwarmSpec, message string, attachments []string) ([]string, error) {
	var items []string
	var err error

	switch {
	case firstJSONArray(message) != "":
		items, err = parseItems(firstJSONArray(message), jsonArrayType(spec.Input))
	case len(attachments) > 0:
		items, err = itemsFromFile(attachments[0], spec.Input)
	case spec.Input != nil && spec.Input.Command != "":
		items, err = itemsFromCommand(substituteParams(spec.Input.Command, message), spec.Input)
	default:
		if m := backtickCommandRe.FindStringSubmatch(message); m != nil {
			items, err = itemsFromCommand(m[1], spec.Input)
		}
	}
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, orcherrors.ErrNoInput
	}
	if len(items) > maxInputItems {
		return nil, orcherrors.ErrTooManyItems
	}
	return items, nil
}

func inputType(in *config.SwarmInputSpec) string {
	if in == nil || in.Type == "" {
		return "lines"
	}
	return in.Type
}

func jsonArrayType(in *config.SwarmInputSpec) string {
	if in != nil && in.Type == "lines" {
		return "lines"
	}
	return "json_array"
}

func itemsFromFile(path string, in *config.SwarmInputSpec) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input attachment: %w", err)
	}
	return parseItems(string(data), inputType(in))
}

func itemsFromCommand(cmdline string, in *config.SwarmInputSpec) ([]string, error) {
	out, err := exec.Command("sh", "-c", cmdline).Output()
	if err != nil {
		return nil, fmt.Errorf("input.command: %w", err)
	}
	return parseItems(string(out), inputType(in))
}

// parseItems splits raw text into items according to typ: "json_array"
// unmarshals a JSON array of arbitrary values and keeps each element as its
// JSON text (strings keep their quotes) so shuffle's key extraction can
// still parse each item; "lines"
// (default) treats every non-blank line as one item.
func parseItems(raw, typ string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if typ == "json_array" {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &arr); err != nil {
			return nil, fmt.Errorf("parse json_array input: %w", err)
		}
		items := make([]string, 0, len(arr))
		for _, v := range arr {
			items = append(items, strings.TrimSpace(string(v)))
		}
		return items, nil
	}

	var items []string
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			items = append(items, line)
		}
	}
	return items, nil
}

// firstJSONArray returns the first top-level '[' ... ']' substring of msg
// that parses as valid JSON, or "" if none is found.
func firstJSONArray(msg string) string {
	start := strings.IndexByte(msg, '[')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(msg, ']')
	if end < start {
		return ""
	}
	candidate := msg[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return ""
	}
	var probe []json.RawMessage
	if json.Unmarshal([]byte(candidate), &probe) != nil {
		return ""
	}
	return candidate
}

// paramRe matches {{name}} placeholders in a configured input.command.
var paramRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// repoTokenRe matches an "owner/name" repo slug token in the trigger
// message (spec §4.4: "{{repo}} matches an owner/name pattern").
var repoTokenRe = regexp.MustCompile(`\b[\w.-]+/[\w.-]+\b`)

// limitTokenRe matches a bare numeric token (spec §4.4: "{{limit}} matches
// a numeric token").
var limitTokenRe = regexp.MustCompile(`\b\d+\b`)

// keyValueRe matches explicit key=value pairs in the trigger message,
// substituted verbatim for a matching {{key}} placeholder (spec §4.4).
var keyValueRe = regexp.MustCompile(`\b(\w+)=(\S+)`)

// substituteParams replaces each {{name}} placeholder in cmdline per spec
// §4.4: {{message}} is the full trigger message; {{repo}} is the first
// owner/name token found in the message; {{limit}} is the first bare
// numeric token; any other {{key}} is replaced by the value of a
// "key=value" pair found in the message, or by an empty single-quoted
// string if none matches. Every substituted value is single-quoted for the shell.
func substituteParams(cmdline, message string) string {
	kv := make(map[string]string)
	for _, m := range keyValueRe.FindAllStringSubmatch(message, -1) {
		kv[m[1]] = m[2]
	}
	repo := repoTokenRe.FindString(message)
	limit := limitTokenRe.FindString(message)

	return paramRe.ReplaceAllStringFunc(cmdline, func(m string) string {
		name := paramRe.FindStringSubmatch(m)[1]
		switch name {
		case "message":
			return shellQuote(message)
		case "repo":
			return shellQuote(repo)
		case "limit":
			return shellQuote(limit)
		default:
			if v, ok := kv[name]; ok {
				return shellQuote(v)
			}
			return shellQuote("")
		}
	})
}

func shellQuote(s string) string {
	var b bytes.Buffer
	b.WriteByte('\'')
	b.WriteString(strings.ReplaceAll(s, "'", `'\''`))
	b.WriteByte('\'')
	return b.String()
}
