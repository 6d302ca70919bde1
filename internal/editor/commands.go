package editor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/filter"
	"github.com/solatis/segmentkeeper/internal/segments"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

func (e *Editor) handleAdd(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: add group | add cond <group>")
	}
	switch args[0] {
	case "group":
		if len(e.tree.Groups) >= types.MaxGroups {
			return fmt.Errorf("a filter holds at most %d groups", types.MaxGroups)
		}
		e.setTree(filter.AddGroup(e.tree))
		fmt.Fprintf(e.out, "added group %d\n", len(e.tree.Groups))
		return nil
	case "cond":
		if len(args) != 2 {
			return fmt.Errorf("usage: add cond <group>")
		}
		gi, g, err := e.groupAt(args[1])
		if err != nil {
			return err
		}
		if len(g.Conditions) >= types.MaxConditionsPerGroup {
			return fmt.Errorf("a group holds at most %d conditions", types.MaxConditionsPerGroup)
		}
		e.setTree(filter.AddCondition(e.tree, g.ID))
		fmt.Fprintf(e.out, "added condition %d.%d\n", gi+1, len(g.Conditions)+1)
		return nil
	default:
		return fmt.Errorf("unknown node kind %q, want group or cond", args[0])
	}
}

func (e *Editor) handleDelete(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: del group <group> | del cond <group.cond>")
	}
	switch args[0] {
	case "group":
		_, g, err := e.groupAt(args[1])
		if err != nil {
			return err
		}
		if len(e.tree.Groups) == 1 {
			return fmt.Errorf("a filter keeps at least one group")
		}
		e.setTree(filter.RemoveGroup(e.tree, g.ID))
		return nil
	case "cond":
		c, groupID, err := e.conditionAt(args[1])
		if err != nil {
			return err
		}
		if g, _ := e.tree.FindGroup(groupID); len(g.Conditions) == 1 {
			return fmt.Errorf("a group keeps at least one condition")
		}
		e.setTree(filter.RemoveCondition(e.tree, groupID, c.ID))
		return nil
	default:
		return fmt.Errorf("unknown node kind %q, want group or cond", args[0])
	}
}

func (e *Editor) handleField(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: field <group.cond> <field>")
	}
	c, _, err := e.conditionAt(args[0])
	if err != nil {
		return err
	}
	if _, err := fields.Lookup(args[1]); err != nil {
		return err
	}
	e.setTree(filter.SetField(e.tree, c.ID, args[1]))
	return nil
}

func (e *Editor) handleOperator(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: op <group.cond> <operator>")
	}
	c, _, err := e.conditionAt(args[0])
	if err != nil {
		return err
	}
	op := fields.Operator(args[1])
	if !fields.Allows(c.Field, op) {
		def := fields.DefinitionOf(c.Field)
		return fmt.Errorf("operator %q not allowed for %s (allowed: %s)", args[1], c.Field, joinOperators(def.AllowedOperators))
	}
	e.setTree(filter.SetOperator(e.tree, c.ID, op))
	return nil
}

// handleValue sets a condition value. For list operators every argument is
// split on commas into list items; otherwise the arguments are joined.
func (e *Editor) handleValue(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: value <group.cond> <value>...")
	}
	c, _, err := e.conditionAt(args[0])
	if err != nil {
		return err
	}

	var value any
	raw := strings.Join(args[1:], " ")
	if c.Operator.IsList() {
		var items []any
		for _, arg := range args[1:] {
			for _, item := range strings.Split(arg, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
		}
		value = items
	} else {
		value = raw
	}

	e.setTree(filter.SetValue(e.tree, c.ID, value))
	if updated, _, _ := e.tree.FindCondition(c.ID); updated.Value == nil && strings.TrimSpace(raw) != "" {
		fmt.Fprintf(e.out, "value %q is not valid for %s; cleared\n", raw, c.Field)
	}
	return nil
}

func (e *Editor) handleLogic(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: logic <AND|OR>")
	}
	logic, ok := filter.ParseLogic(args[0])
	if !ok {
		return fmt.Errorf("logic must be AND or OR, got %q", args[0])
	}
	e.setTree(filter.SetTreeLogic(e.tree, logic))
	return nil
}

func (e *Editor) handleGroupLogic(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: glogic <group> <AND|OR>")
	}
	_, g, err := e.groupAt(args[0])
	if err != nil {
		return err
	}
	logic, ok := filter.ParseLogic(args[1])
	if !ok {
		return fmt.Errorf("logic must be AND or OR, got %q", args[1])
	}
	e.setTree(filter.SetGroupLogic(e.tree, g.ID, logic))
	return nil
}

// handleImport replaces the tree with a decoded filter document. Any of the
// accepted filter shapes works; unrecognised input yields a fresh tree.
func (e *Editor) handleImport(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: import <json>")
	}
	e.setTree(wire.DecodeString(strings.Join(args, " ")))
	e.printTree()
	return nil
}

func (e *Editor) handlePreview(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	st, err := e.session.Wait(ctx)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	printState(e.out, st, true)
	return nil
}

func (e *Editor) handleLoad(ctx context.Context, args []string) error {
	if e.store == nil {
		return fmt.Errorf("no server configured")
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: load <segment id>")
	}
	id, err := types.ParseSegmentID(args[0])
	if err != nil {
		return fmt.Errorf("invalid segment id %q", args[0])
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	seg, err := e.store.GetSegment(ctx, id)
	if err != nil {
		return fmt.Errorf("load segment: %w", err)
	}
	e.segment = &seg
	e.setTree(seg.Filters.Tree())
	fmt.Fprintf(e.out, "loaded %q (%d members)\n", seg.Name, seg.MemberCount)
	e.printTree()
	return nil
}

// handleSave updates the loaded segment or creates a new one.
// Syntax: save [name] [--active|--inactive].
func (e *Editor) handleSave(ctx context.Context, args []string) error {
	if e.store == nil {
		return fmt.Errorf("no server configured")
	}

	var name string
	var active *bool
	for _, arg := range args {
		switch arg {
		case "--active":
			v := true
			active = &v
		case "--inactive":
			v := false
			active = &v
		default:
			if name != "" {
				return fmt.Errorf("usage: save [name] [--active|--inactive]")
			}
			name = arg
		}
	}

	q := wire.Encode(e.tree)
	if q.IsEmpty() {
		return types.ErrEmptyFilter
	}

	in := segments.Input{Name: name, Filters: q, IsActive: true}
	if e.segment != nil {
		if in.Name == "" {
			in.Name = e.segment.Name
		}
		in.Description = e.segment.Description
		in.IsActive = e.segment.IsActive
	} else if in.Name == "" {
		return fmt.Errorf("usage: save <name> (new segments need a name)")
	}
	if active != nil {
		in.IsActive = *active
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var seg segments.Segment
	var err error
	if e.segment != nil {
		seg, err = e.store.UpdateSegment(ctx, e.segment.ID, in)
	} else {
		seg, err = e.store.CreateSegment(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("save segment: %w", err)
	}
	e.segment = &seg
	fmt.Fprintf(e.out, "saved %q as %s (%d members)\n", seg.Name, seg.ID, seg.MemberCount)
	return nil
}

func (e *Editor) groupAt(ref string) (int, filter.Group, error) {
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(e.tree.Groups) {
		return 0, filter.Group{}, fmt.Errorf("no group %q (have %d)", ref, len(e.tree.Groups))
	}
	return n - 1, e.tree.Groups[n-1], nil
}

func (e *Editor) conditionAt(ref string) (filter.Condition, string, error) {
	groupRef, condRef, ok := strings.Cut(ref, ".")
	if !ok {
		return filter.Condition{}, "", fmt.Errorf("condition must be addressed as <group.cond>, got %q", ref)
	}
	_, g, err := e.groupAt(groupRef)
	if err != nil {
		return filter.Condition{}, "", err
	}
	n, err := strconv.Atoi(condRef)
	if err != nil || n < 1 || n > len(g.Conditions) {
		return filter.Condition{}, "", errors.New("no condition " + strconv.Quote(ref))
	}
	return g.Conditions[n-1], g.ID, nil
}
