package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// A ReplCommand receives the whole input line, trigger included.
type ReplCommand func(string, *REPLConfig) (output string, err error)

const (
	// Trigger for the help meta-command that prints out all help strings
	TriggerHelpMetacommand = ".help"

	// String that should be prepended to any error before being sent to the output writer
	ErrorPrependStr = "ERROR: "
)

var (
	// ErrOverlappingCommands is returned by CombineRepls when two REPLs share a trigger.
	ErrOverlappingCommands = errors.New("found overlapping commands")

	// Error for when a sent trigger is not associated with any known commands
	ErrCommandNotFound = errors.New("command not found")

	// ErrReservedTrigger is returned when a command tries to take over a meta-command.
	ErrReservedTrigger = errors.New("trigger is reserved")
)

// REPL maps triggers to commands and their help strings.
type REPL struct {
	commands map[string]ReplCommand
	help     map[string]string
}

// REPLConfig carries per-session state handed to every command.
type REPLConfig struct {
	clientId uuid.UUID
}

// GetAddr returns the id of the client driving this session.
func (replConfig *REPLConfig) GetAddr() uuid.UUID {
	return replConfig.clientId
}

// NewRepl returns a REPL with no commands.
func NewRepl() *REPL {
	return &REPL{
		commands: make(map[string]ReplCommand),
		help:     make(map[string]string),
	}
}

// CombineRepls merges the commands of several REPLs into a new one.
// It fails if any trigger appears in more than one of them.
func CombineRepls(repls []*REPL) (*REPL, error) {
	combined := NewRepl()
	for _, r := range repls {
		for trigger, command := range r.commands {
			if _, exists := combined.commands[trigger]; exists {
				return nil, fmt.Errorf("%w: %s", ErrOverlappingCommands, trigger)
			}
			combined.commands[trigger] = command
			combined.help[trigger] = r.help[trigger]
		}
	}
	return combined, nil
}

// GetCommands returns the registered commands keyed by trigger.
func (r *REPL) GetCommands() map[string]ReplCommand {
	return r.commands
}

// GetHelp returns the registered help strings keyed by trigger.
func (r *REPL) GetHelp() map[string]string {
	return r.help
}

// AddCommand registers a command under trigger, replacing any previous one.
func (r *REPL) AddCommand(trigger string, action ReplCommand, help string) error {
	if trigger == TriggerHelpMetacommand {
		return fmt.Errorf("%w: %s", ErrReservedTrigger, trigger)
	}
	r.commands[trigger] = action
	r.help[trigger] = help
	return nil
}

// HelpString returns one "trigger: help" line per command, sorted by trigger.
func (r *REPL) HelpString() string {
	triggers := make([]string, 0, len(r.help))
	for trigger := range r.help {
		triggers = append(triggers, trigger)
	}
	sort.Strings(triggers)

	var sb strings.Builder
	for _, trigger := range triggers {
		fmt.Fprintf(&sb, "%s: %s\n", trigger, r.help[trigger])
	}
	return sb.String()
}

// Run writes a welcome line and then reads commands from input until EOF,
// writing each command's result or error to output. Input and output
// default to stdin and stdout.
func (r *REPL) Run(clientId uuid.UUID, prompt string, input io.Reader, output io.Writer) {
	if input == nil {
		input = os.Stdin
	}
	if output == nil {
		output = os.Stdout
	}

	scanner := bufio.NewScanner(input)
	replConfig := &REPLConfig{clientId: clientId}
	fmt.Fprintln(output, "Welcome to the ehtdb REPL! Please type '.help' to see the list of available commands.")
	io.WriteString(output, prompt)
	for scanner.Scan() {
		io.WriteString(output, r.dispatch(scanner.Text(), replConfig))
		io.WriteString(output, prompt)
	}
	// Print an additional line if we encountered an EOF character.
	io.WriteString(output, "\n")
}

// RunChan runs every command received on c, echoing each one to output
// before its result. It returns once c is closed.
func (r *REPL) RunChan(c <-chan string, clientId uuid.UUID, prompt string, output io.Writer) {
	if output == nil {
		output = os.Stdout
	}
	replConfig := &REPLConfig{clientId: clientId}
	io.WriteString(output, prompt)
	for payload := range c {
		io.WriteString(output, payload+"\n")
		io.WriteString(output, r.dispatch(payload, replConfig))
		io.WriteString(output, prompt)
	}
	io.WriteString(output, "\n")
}

// dispatch runs one input line and returns what should be written back.
func (r *REPL) dispatch(payload string, replConfig *REPLConfig) string {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return ""
	}
	trigger := fields[0]
	if trigger == TriggerHelpMetacommand {
		return r.HelpString()
	}
	command, exists := r.commands[trigger]
	if !exists {
		return fmt.Sprintf("%s%s\n", ErrorPrependStr, ErrCommandNotFound)
	}
	result, err := command(payload, replConfig)
	if err != nil {
		return fmt.Sprintf("%s%s\n", ErrorPrependStr, err)
	}
	if len(result) != 0 && !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	return result
}
