package editor

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/filter"
	"github.com/solatis/segmentkeeper/internal/preview"
	"github.com/solatis/segmentkeeper/internal/wire"
)

// StateListener prints settled preview states to w. Loading and idle
// transitions are not printed.
func StateListener(w io.Writer) func(preview.State) {
	return func(st preview.State) {
		if st.Status == preview.StatusReady || st.Status == preview.StatusFailed {
			printState(w, st, false)
		}
	}
}

func printState(w io.Writer, st preview.State, withSample bool) {
	switch st.Status {
	case preview.StatusIdle:
		fmt.Fprintln(w, "preview: no complete conditions")
	case preview.StatusLoading:
		fmt.Fprintln(w, "preview: loading")
	case preview.StatusFailed:
		fmt.Fprintf(w, "preview failed: %v (type 'retry')\n", st.Err)
	case preview.StatusReady:
		fmt.Fprintf(w, "preview: %d %s\n", st.Count, plural(st.Count, "customer", "customers"))
		if !withSample {
			return
		}
		for _, c := range st.Sample {
			name := strings.TrimSpace(c.FirstName + " " + c.LastName)
			fmt.Fprintf(w, "  %-36s %-28s %-20s %10s %4d %s\n",
				c.ID, c.Email, name, strconv.FormatFloat(c.TotalSpent, 'f', 2, 64), c.OrdersCount, c.RFMSegment)
		}
	}
}

func (e *Editor) printTree() {
	if e.segment != nil {
		fmt.Fprintf(e.out, "segment %q (%s)\n", e.segment.Name, e.segment.ID)
	}
	fmt.Fprintf(e.out, "match %s of:\n", e.tree.Logic)
	for gi, g := range e.tree.Groups {
		fmt.Fprintf(e.out, "  [%d] %s\n", gi+1, g.Logic)
		for ci, c := range g.Conditions {
			mark := ""
			if !c.IsComplete() {
				mark = "  (incomplete)"
			}
			fmt.Fprintf(e.out, "      %d.%d %s%s\n", gi+1, ci+1, formatCondition(c), mark)
		}
	}
	printState(e.out, e.session.State(), false)
}

func (e *Editor) printFields() {
	for _, def := range fields.Catalog.All() {
		fmt.Fprintf(e.out, "%-20s %-8s %s\n", def.Key, def.ValueType, joinOperators(def.AllowedOperators))
		if len(def.EnumValues) > 0 {
			values := lo.Map(def.EnumValues, func(v fields.EnumValue, _ int) string { return v.Value })
			fmt.Fprintf(e.out, "%-20s values: %s\n", "", strings.Join(values, ", "))
		}
	}
}

func (e *Editor) printQuery() error {
	data, err := wire.Encode(e.tree).Marshal()
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, string(data))
	return nil
}

func formatCondition(c filter.Condition) string {
	if c.Operator.IsNullary() {
		return fmt.Sprintf("%s %s", c.Field, c.Operator)
	}
	return fmt.Sprintf("%s %s %s", c.Field, c.Operator, formatValue(c.Value))
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "<empty>"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return strconv.Quote(v)
	case []any:
		return "[" + strings.Join(lo.Map(v, func(item any, _ int) string { return formatValue(item) }), ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}

func joinOperators(ops []fields.Operator) string {
	return strings.Join(lo.Map(ops, func(op fields.Operator, _ int) string { return string(op) }), ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func (e *Editor) printHelp(command string) {
	if command == "" {
		fmt.Fprintln(e.out, "Available commands:")
		names := lo.Keys(commandHelp)
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(e.out, "  %s\n", name)
		}
		fmt.Fprintln(e.out, "\nUse 'help <command>' for more information about a specific command.")
	} else if help, ok := commandHelp[command]; ok {
		fmt.Fprintln(e.out, help)
	} else {
		fmt.Fprintf(e.out, "Unknown command: %s\n", command)
	}
}

// commandHelp contains help text for each command.
var commandHelp = map[string]string{
	"show": `Syntax: show
Description: Prints the filter tree with group and condition positions, and the preview state.`,

	"fields": `Syntax: fields
Description: Lists the customer fields with their value types and allowed operators.`,

	"add": `Syntax: add group | add cond <group>
Description: Appends a group, or a condition to the group at <group>.
New conditions start on the default field and are incomplete until they have a value.
Example: add cond 1`,

	"del": `Syntax: del group <group> | del cond <group.cond>
Description: Removes a group or a condition. The last group and a group's last condition are kept.
Example: del cond 2.1`,

	"field": `Syntax: field <group.cond> <field>
Description: Switches the condition to another field. Operator and value reset to the field defaults.
Example: field 1.1 rfmSegment`,

	"op": `Syntax: op <group.cond> <operator>
Description: Switches the condition operator. The value is kept.
Example: op 1.1 in`,

	"value": `Syntax: value <group.cond> <value>...
Description: Sets the condition value. Values are converted to the field type; invalid values clear it.
For in/notIn the value is a comma-separated list. Use "" to clear the value.
Example: value 1.1 champions,loyal`,

	"logic": `Syntax: logic <AND|OR>
Description: Sets how groups combine.`,

	"glogic": `Syntax: glogic <group> <AND|OR>
Description: Sets how the conditions of one group combine.
Example: glogic 1 OR`,

	"new": `Syntax: new
Description: Discards the current filter and starts a new unsaved one.`,

	"json": `Syntax: json
Description: Prints the query sent to the server for the current filter.`,

	"import": `Syntax: import <json>
Description: Replaces the filter with a decoded filter document. Older saved shapes are accepted.
The rest of the line is taken verbatim, quotes included.
Example: import {"logic":"AND","conditions":[{"field":"isHighValue","operator":"eq","value":true}]}`,

	"preview": `Syntax: preview
Description: Waits for the pending preview and prints the count with sample customers.`,

	"retry": `Syntax: retry
Description: Re-runs a failed preview immediately.`,

	"load": `Syntax: load <segment id>
Description: Loads a saved segment into the editor.`,

	"save": `Syntax: save [name] [--active|--inactive]
Description: Updates the loaded segment, or creates a new one named <name>.`,

	"help": `Syntax: help [command]
Description: Shows the command list or help for one command.`,

	"exit": `Syntax: exit
Description: Leaves the editor. Unsaved changes are lost.`,
}
