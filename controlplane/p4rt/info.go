package p4rt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

// Info indexes the P4Info of a bound pipeline.
//
// Tables and actions are looked up by their fully qualified name, their
// alias, or any unambiguous dot-separated suffix of the qualified name, so
// "send_pkt" finds "SwitchIngress.send_pkt".
type Info struct {
	p4info  *p4config.P4Info
	tables  map[uint32]*p4config.Table
	actions map[uint32]*p4config.Action
}

// NewInfo indexes the given P4Info.
func NewInfo(p4info *p4config.P4Info) *Info {
	info := &Info{
		p4info:  p4info,
		tables:  map[uint32]*p4config.Table{},
		actions: map[uint32]*p4config.Action{},
	}

	for _, table := range p4info.GetTables() {
		info.tables[table.GetPreamble().GetId()] = table
	}
	for _, action := range p4info.GetActions() {
		info.actions[action.GetPreamble().GetId()] = action
	}

	return info
}

// Name returns the program name recorded in the P4Info, if any.
func (m *Info) Name() string {
	return m.p4info.GetPkgInfo().GetName()
}

// P4Info returns the underlying message.
func (m *Info) P4Info() *p4config.P4Info {
	return m.p4info
}

// FindTable resolves a table by name.
func (m *Info) FindTable(name string) (*p4config.Table, error) {
	return resolve(name, m.p4info.GetTables(), (*p4config.Table).GetPreamble, ErrTableNotFound)
}

// FindAction resolves an action by name.
func (m *Info) FindAction(name string) (*p4config.Action, error) {
	return resolve(name, m.p4info.GetActions(), (*p4config.Action).GetPreamble, ErrActionNotFound)
}

// TableByID returns the table with the given id.
func (m *Info) TableByID(id uint32) (*p4config.Table, bool) {
	table, ok := m.tables[id]
	return table, ok
}

// ActionByID returns the action with the given id.
func (m *Info) ActionByID(id uint32) (*p4config.Action, bool) {
	action, ok := m.actions[id]
	return action, ok
}

func resolve[T any](
	name string,
	items []T,
	preamble func(T) *p4config.Preamble,
	notFound error,
) (T, error) {
	var zero T

	for _, item := range items {
		p := preamble(item)
		if p.GetName() == name || p.GetAlias() == name {
			return item, nil
		}
	}

	g, err := glob.Compile("**."+glob.QuoteMeta(name), '.')
	if err != nil {
		return zero, fmt.Errorf("invalid name %q: %w", name, err)
	}

	var matches []T
	var names []string
	for _, item := range items {
		if g.Match(preamble(item).GetName()) {
			matches = append(matches, item)
			names = append(names, preamble(item).GetName())
		}
	}

	switch len(matches) {
	case 0:
		return zero, fmt.Errorf("%w: %q", notFound, name)
	case 1:
		return matches[0], nil
	default:
		return zero, fmt.Errorf("name %q is ambiguous: %s", name, strings.Join(names, ", "))
	}
}

// LoadP4Info reads a P4Info file produced by the P4 compiler.
//
// Files with a ".bin" or ".pb" extension are decoded as binary protobuf,
// anything else as text format.
func LoadP4Info(path string) (*p4config.P4Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read P4Info file: %w", err)
	}

	p4info := &p4config.P4Info{}
	switch filepath.Ext(path) {
	case ".bin", ".pb":
		err = proto.Unmarshal(data, p4info)
	default:
		err = prototext.Unmarshal(data, p4info)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode P4Info file %q: %w", path, err)
	}

	return p4info, nil
}
