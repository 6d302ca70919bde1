// Package editor is an interactive filter editor for the terminal.
//
// The editor holds one filter tree, applies edit commands to it and feeds
// every change into a preview session, so the match count follows the edits
// the same way it does in the admin UI.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/filter"
	"github.com/solatis/segmentkeeper/internal/preview"
	"github.com/solatis/segmentkeeper/internal/segments"
	"github.com/solatis/segmentkeeper/internal/types"
)

/*
 * Addressing.
 *
 * Node ids are opaque, so commands address nodes by position instead:
 * "2" is the second group, "2.3" the third condition of the second group.
 * Positions are 1-based and follow the order printed by `show`.
 *
 * Edit operations on the tree silently ignore invalid input. The editor
 * checks first and reports the problem, so a typo never looks like a
 * successful edit.
 */

// ErrExit is returned by Execute when the user asks to leave.
var ErrExit = errors.New("exit requested")

// SegmentStore is the segment surface used by load and save.
// Implemented by *client.Client.
type SegmentStore interface {
	GetSegment(ctx context.Context, id types.SegmentID) (segments.Segment, error)
	CreateSegment(ctx context.Context, in segments.Input) (segments.Segment, error)
	UpdateSegment(ctx context.Context, id types.SegmentID, in segments.Input) (segments.Segment, error)
}

// Editor is not safe for concurrent use; one goroutine drives it.
type Editor struct {
	tree    filter.Tree
	session *preview.Session
	store   SegmentStore
	out     io.Writer
	timeout time.Duration

	// segment is the loaded or last saved segment; nil until then
	segment *segments.Segment
}

// New creates an editor over a fresh tree. store may be nil, which disables
// load and save.
func New(session *preview.Session, store SegmentStore, out io.Writer) *Editor {
	e := &Editor{
		session: session,
		store:   store,
		out:     out,
		timeout: 10 * time.Second,
	}
	e.setTree(filter.New())
	return e
}

// Tree returns the tree being edited.
func (e *Editor) Tree() filter.Tree {
	return e.tree
}

// SetTree replaces the tree being edited.
func (e *Editor) SetTree(t filter.Tree) {
	e.setTree(t)
}

func (e *Editor) setTree(t filter.Tree) {
	e.tree = t
	e.session.Update(t)
}

// Run reads commands from rl until exit, EOF or an interrupt on an empty line.
func (e *Editor) Run(ctx context.Context, rl *readline.Instance) error {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		args := ParseArgs(line)
		if rest, ok := strings.CutPrefix(line, "import "); ok {
			// JSON keeps its quotes
			args = []string{"import", rest}
		}
		err = e.Execute(ctx, args)
		if errors.Is(err, ErrExit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(e.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// ParseArgs splits a command line on spaces. Double quotes group words and
// are removed; "" yields an empty argument.
func ParseArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false
	quoted := false

	for _, char := range input {
		switch char {
		case '"':
			inQuotes = !inQuotes
			quoted = true
		case ' ', '\t':
			if inQuotes {
				current.WriteRune(char)
				continue
			}
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
				quoted = false
			}
		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}
	return args
}

// Execute runs one parsed command.
func (e *Editor) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command provided")
	}

	switch args[0] {
	case "show":
		e.printTree()
		return nil
	case "fields":
		e.printFields()
		return nil
	case "add":
		return e.handleAdd(args[1:])
	case "del":
		return e.handleDelete(args[1:])
	case "field":
		return e.handleField(args[1:])
	case "op":
		return e.handleOperator(args[1:])
	case "value":
		return e.handleValue(args[1:])
	case "logic":
		return e.handleLogic(args[1:])
	case "glogic":
		return e.handleGroupLogic(args[1:])
	case "new":
		e.segment = nil
		e.setTree(filter.New())
		return nil
	case "json":
		return e.printQuery()
	case "import":
		return e.handleImport(args[1:])
	case "preview":
		return e.handlePreview(ctx)
	case "retry":
		e.session.Retry()
		return nil
	case "load":
		return e.handleLoad(ctx, args[1:])
	case "save":
		return e.handleSave(ctx, args[1:])
	case "help":
		topic := ""
		if len(args) > 1 {
			topic = args[1]
		}
		e.printHelp(topic)
		return nil
	case "exit", "quit":
		return ErrExit
	default:
		return fmt.Errorf("unknown command: %s (try 'help')", args[0])
	}
}

// Completer offers command names and field keys for tab completion.
func Completer() *readline.PrefixCompleter {
	keys := fields.Catalog.Keys()
	fieldItems := make([]readline.PrefixCompleterInterface, 0, len(keys))
	for _, key := range keys {
		fieldItems = append(fieldItems, readline.PcItem(key))
	}
	opItems := make([]readline.PrefixCompleterInterface, 0, len(fields.Operators))
	for _, op := range fields.Operators {
		opItems = append(opItems, readline.PcItem(string(op)))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("show"),
		readline.PcItem("fields"),
		readline.PcItem("add", readline.PcItem("group"), readline.PcItem("cond")),
		readline.PcItem("del", readline.PcItem("group"), readline.PcItem("cond")),
		readline.PcItem("field", fieldItems...),
		readline.PcItem("op", opItems...),
		readline.PcItem("value"),
		readline.PcItem("logic", readline.PcItem("AND"), readline.PcItem("OR")),
		readline.PcItem("glogic"),
		readline.PcItem("new"),
		readline.PcItem("json"),
		readline.PcItem("import"),
		readline.PcItem("preview"),
		readline.PcItem("retry"),
		readline.PcItem("load"),
		readline.PcItem("save"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}
