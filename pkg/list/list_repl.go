package list

import (
	"errors"
	"fmt"
	"strings"

	"ehtdb/pkg/repl"
)

var (
	ErrListPrintInvalidArgs    = errors.New("invalid arguments, usage: list_print")
	ErrListPushHeadInvalidArgs = errors.New("invalid arguments, usage: list_push_head <elt>")
	ErrListPushTailInvalidArgs = errors.New("invalid arguments, usage: list_push_tail <elt>")
	ErrListRemoveValueNotFound = errors.New("link with given value was not found")
	ErrListRemoveInvalidArgs   = errors.New("invalid arguments, usage: list_remove <elt>")
	ErrListContainsInvalidArgs = errors.New("invalid arguments, usage: list_contains <elt>")
)

const (
	HelpListPrint    = "Prints out all of the elements in the list in order. usage: list_print"
	HelpListPushHead = "Inserts the given element to the head of the list. usage: list_push_head <elt>"
	HelpListPushTail = "Inserts the given element to the end of the list. usage: list_push_tail <elt>"
	HelpListRemove   = "Removes the given element from the list. usage: list_remove <elt>"
	HelpListContains = "Check whether the element is in the list or not. usage: list_contains <elt>"

	OutputListContainsFound    = "value was found"
	OutputListContainsNotFound = "value was not found"
)

// ListRepl creates a REPL that manipulates a list of strings.
func ListRepl(list *List[string]) *repl.REPL {
	r := repl.NewRepl()

	// findValue returns the first link holding the single argument of payload.
	findValue := func(fields []string) *Link[string] {
		return list.Find(func(l *Link[string]) bool { return l.GetValue() == fields[1] })
	}

	r.AddCommand("list_print", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		if len(strings.Fields(payload)) != 1 {
			return "", ErrListPrintInvalidArgs
		}
		w := new(strings.Builder)
		list.Map(func(l *Link[string]) { fmt.Fprintln(w, l.GetValue()) })
		return w.String(), nil
	}, HelpListPrint)

	r.AddCommand("list_push_head", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		fields := strings.Fields(payload)
		if len(fields) != 2 {
			return "", ErrListPushHeadInvalidArgs
		}
		list.PushHead(fields[1])
		return "", nil
	}, HelpListPushHead)

	r.AddCommand("list_push_tail", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		fields := strings.Fields(payload)
		if len(fields) != 2 {
			return "", ErrListPushTailInvalidArgs
		}
		list.PushTail(fields[1])
		return "", nil
	}, HelpListPushTail)

	r.AddCommand("list_remove", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		fields := strings.Fields(payload)
		if len(fields) != 2 {
			return "", ErrListRemoveInvalidArgs
		}
		link := findValue(fields)
		if link == nil {
			return "", ErrListRemoveValueNotFound
		}
		link.PopSelf()
		return "", nil
	}, HelpListRemove)

	r.AddCommand("list_contains", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		fields := strings.Fields(payload)
		if len(fields) != 2 {
			return "", ErrListContainsInvalidArgs
		}
		if findValue(fields) != nil {
			return OutputListContainsFound, nil
		}
		return OutputListContainsNotFound, nil
	}, HelpListContains)

	return r
}
