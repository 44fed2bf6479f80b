package credentials

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// machineEntry is one machine block from a netrc-format credential file.
// Platform convention stores the token as the password, with login set to
// a descriptive label such as "token".
type machineEntry struct {
	// Name is the hostname the entry applies to. Empty for the default entry.
	Name string

	// Login is the account label. Unused for token auth but parsed.
	Login string

	// Password carries the access token.
	Password string

	// Default marks the catch-all entry used when no machine matches.
	Default bool
}

// ParseError reports a malformed credential file.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
}

// lookupMachine opens the credential file and returns the entry matching
// hostname, falling back to the default entry. A nil entry with nil error
// means the file parsed cleanly but holds nothing for this host. Missing
// files surface as fs.ErrNotExist from os.Open.
func lookupMachine(path, hostname string) (*machineEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := parseNetrc(f)
	if err != nil {
		var pe *ParseError
		if ok := asParseError(err, &pe); ok {
			pe.Path = path
		}
		return nil, err
	}

	var fallback *machineEntry
	for i := range entries {
		e := &entries[i]
		if e.Default {
			if fallback == nil {
				fallback = e
			}
			continue
		}
		if strings.EqualFold(e.Name, hostname) {
			return e, nil
		}
	}
	return fallback, nil
}

func asParseError(err error, target **ParseError) bool {
	pe, ok := err.(*ParseError)
	if ok {
		*target = pe
	}
	return ok
}

// parseNetrc reads machine entries in netrc format: whitespace-separated
// key/value tokens, entries opened by "machine <name>" or "default",
// "login"/"password"/"account" values, "#" comments to end of line, and
// "macdef" macro bodies skipped through the next blank line.
func parseNetrc(r io.Reader) ([]machineEntry, error) {
	var (
		entries []machineEntry
		current *machineEntry
		pending string
		inMacro bool
		lineNo  int
	)

	flush := func() {
		if current != nil {
			entries = append(entries, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if inMacro {
			if strings.TrimSpace(line) == "" {
				inMacro = false
			}
			continue
		}

		fields := strings.Fields(line)
		for _, tok := range fields {
			if strings.HasPrefix(tok, "#") {
				break
			}

			if pending == "macdef" {
				// Macro body starts on the next line and runs to a blank line.
				pending = ""
				inMacro = true
				break
			}

			if pending != "" {
				switch pending {
				case "machine":
					current.Name = tok
				case "login":
					current.Login = tok
				case "password":
					current.Password = tok
				case "account":
					// Recognized for compatibility, not used.
				}
				pending = ""
				continue
			}

			switch tok {
			case "machine":
				flush()
				current = &machineEntry{}
				pending = "machine"
			case "default":
				flush()
				current = &machineEntry{Default: true}
			case "login", "password", "account":
				if current == nil {
					return nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("%q before any machine entry", tok)}
				}
				pending = tok
			case "macdef":
				pending = "macdef"
			default:
				return nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("unexpected token %q", tok)}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if pending != "" && pending != "macdef" {
		return nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("%q missing its value", pending)}
	}
	flush()

	return entries, nil
}
