package p4rt

import (
	"context"
	"fmt"
	"io"
	"strings"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
)

// Table is a match-action table of the bound pipeline.
type Table struct {
	name   string
	table  *p4config.Table
	client *Client
}

// Name returns the fully qualified table name.
func (m *Table) Name() string {
	return m.table.GetPreamble().GetName()
}

// ID returns the table id.
func (m *Table) ID() uint32 {
	return m.table.GetPreamble().GetId()
}

// Entry is a table entry read back from the device.
type Entry struct {
	// Key is the rendered match key, one element per match field.
	Key []string
	// Action is the action name, empty when the entry carries none.
	Action string
	// Data is the rendered action parameters.
	Data []string

	raw *p4v1.TableEntry
}

// Raw returns the entry as received from the device.
func (m Entry) Raw() *p4v1.TableEntry {
	return m.raw
}

// KeyString renders the key in a single line.
func (m Entry) KeyString() string {
	if len(m.Key) == 0 {
		return "<default>"
	}
	return strings.Join(m.Key, ", ")
}

// DataString renders the action invocation in a single line.
func (m Entry) DataString() string {
	if m.Action == "" {
		return "<none>"
	}
	return fmt.Sprintf("%s(%s)", m.Action, strings.Join(m.Data, ", "))
}

func (m *Table) checkTarget(target Target) error {
	if target.DeviceID != m.client.deviceID {
		return fmt.Errorf("target %s does not belong to device %d", target, m.client.deviceID)
	}
	if target.PipeID != PipeAll {
		return fmt.Errorf("target %s: only all-pipe scope is supported", target)
	}
	return nil
}

// Entries reads all entries of the table.
func (m *Table) Entries(ctx context.Context, target Target) ([]Entry, error) {
	if err := m.checkTarget(target); err != nil {
		return nil, err
	}

	entities, err := m.client.read(ctx, &p4v1.Entity{
		Entity: &p4v1.Entity_TableEntry{
			TableEntry: &p4v1.TableEntry{TableId: m.ID()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read table %q: %w", m.name, err)
	}

	entries := make([]Entry, 0, len(entities))
	for _, entity := range entities {
		te := entity.GetTableEntry()
		if te == nil || te.GetTableId() != m.ID() || te.GetIsDefaultAction() {
			continue
		}
		entries = append(entries, m.decodeEntry(te))
	}

	return entries, nil
}

// Add inserts a single entry.
func (m *Table) Add(
	ctx context.Context,
	target Target,
	keys []KeyField,
	action string,
	data []DataField,
) error {
	if err := m.checkTarget(target); err != nil {
		return err
	}

	te, err := m.MakeEntry(keys, action, data)
	if err != nil {
		return fmt.Errorf("failed to build entry for table %q: %w", m.name, err)
	}

	update := &p4v1.Update{
		Type:   p4v1.Update_INSERT,
		Entity: &p4v1.Entity{Entity: &p4v1.Entity_TableEntry{TableEntry: te}},
	}
	if err := m.client.write(ctx, []*p4v1.Update{update}); err != nil {
		return fmt.Errorf("failed to add entry to table %q: %w", m.name, err)
	}

	return nil
}

// Delete removes the given entries in one atomic write.
func (m *Table) Delete(ctx context.Context, target Target, entries []Entry) error {
	if err := m.checkTarget(target); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	updates := make([]*p4v1.Update, 0, len(entries))
	for _, entry := range entries {
		// Only the key identifies an entry being deleted.
		te := &p4v1.TableEntry{
			TableId:  entry.raw.GetTableId(),
			Match:    entry.raw.GetMatch(),
			Priority: entry.raw.GetPriority(),
		}
		updates = append(updates, &p4v1.Update{
			Type:   p4v1.Update_DELETE,
			Entity: &p4v1.Entity{Entity: &p4v1.Entity_TableEntry{TableEntry: te}},
		})
	}

	if err := m.client.write(ctx, updates); err != nil {
		return fmt.Errorf("failed to delete entries from table %q: %w", m.name, err)
	}

	return nil
}

// Flush deletes every entry of the table and returns how many there were.
func (m *Table) Flush(ctx context.Context, target Target) (int, error) {
	entries, err := m.Entries(ctx, target)
	if err != nil {
		return 0, err
	}

	if err := m.Delete(ctx, target, entries); err != nil {
		return 0, err
	}

	return len(entries), nil
}

// Print writes the table contents in a human-readable form.
func (m *Table) Print(ctx context.Context, w io.Writer, target Target) error {
	entries, err := m.Entries(ctx, target)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "table %s:\n", m.Name())
	for idx, entry := range entries {
		fmt.Fprintf(w, "  - entry %d: %s -> %s\n", idx, entry.KeyString(), entry.DataString())
	}

	return nil
}

// MakeEntry builds the runtime representation of an entry of this table.
func (m *Table) MakeEntry(keys []KeyField, action string, data []DataField) (*p4v1.TableEntry, error) {
	te := &p4v1.TableEntry{TableId: m.ID()}

	for _, key := range keys {
		field := m.findMatchField(key.Name)
		if field == nil {
			return nil, fmt.Errorf("%w: match field %q", ErrFieldNotFound, key.Name)
		}

		match, err := encodeMatch(field, key)
		if err != nil {
			return nil, err
		}
		if match != nil {
			te.Match = append(te.Match, match)
		}
	}

	if m.needsPriority() {
		te.Priority = 1
	}

	tableAction, err := m.makeAction(action, data)
	if err != nil {
		return nil, err
	}
	te.Action = tableAction

	return te, nil
}

func (m *Table) makeAction(name string, data []DataField) (*p4v1.TableAction, error) {
	action, err := m.client.info.FindAction(name)
	if err != nil {
		return nil, err
	}

	actionID := action.GetPreamble().GetId()
	allowed := false
	for _, ref := range m.table.GetActionRefs() {
		if ref.GetId() == actionID {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %q is not an action of table %q", ErrActionNotFound, name, m.name)
	}

	if len(data) != len(action.GetParams()) {
		return nil, fmt.Errorf("action %q takes %d parameters, got %d", name, len(action.GetParams()), len(data))
	}

	out := &p4v1.Action{ActionId: actionID}
	for _, d := range data {
		param := findParam(action, d.Name)
		if param == nil {
			return nil, fmt.Errorf("%w: parameter %q of action %q", ErrFieldNotFound, d.Name, name)
		}

		value, err := EncodeValue(d.Value, param.GetBitwidth())
		if err != nil {
			return nil, fmt.Errorf("parameter %q of action %q: %w", d.Name, name, err)
		}
		out.Params = append(out.Params, &p4v1.Action_Param{
			ParamId: param.GetId(),
			Value:   value,
		})
	}

	return &p4v1.TableAction{
		Type: &p4v1.TableAction_Action{Action: out},
	}, nil
}

func (m *Table) findMatchField(name string) *p4config.MatchField {
	for _, field := range m.table.GetMatchFields() {
		if field.GetName() == name {
			return field
		}
	}
	return nil
}

func (m *Table) findMatchFieldByID(id uint32) *p4config.MatchField {
	for _, field := range m.table.GetMatchFields() {
		if field.GetId() == id {
			return field
		}
	}
	return nil
}

// needsPriority reports whether entries of the table must carry a priority,
// which is the case once any field matches on more than an exact value.
func (m *Table) needsPriority() bool {
	for _, field := range m.table.GetMatchFields() {
		switch field.GetMatchType() {
		case p4config.MatchField_TERNARY, p4config.MatchField_RANGE, p4config.MatchField_OPTIONAL:
			return true
		}
	}
	return false
}

func findParam(action *p4config.Action, name string) *p4config.Action_Param {
	for _, param := range action.GetParams() {
		if param.GetName() == name {
			return param
		}
	}
	return nil
}

func (m *Table) decodeEntry(te *p4v1.TableEntry) Entry {
	entry := Entry{raw: te}

	for _, match := range te.GetMatch() {
		name := fmt.Sprintf("field#%d", match.GetFieldId())
		if field := m.findMatchFieldByID(match.GetFieldId()); field != nil {
			name = field.GetName()
		}
		entry.Key = append(entry.Key, decodeMatch(name, match))
	}

	action := te.GetAction().GetAction()
	if action == nil {
		return entry
	}

	entry.Action = fmt.Sprintf("action#%d", action.GetActionId())
	p4action, ok := m.client.info.ActionByID(action.GetActionId())
	if ok {
		entry.Action = p4action.GetPreamble().GetName()
	}

	for _, param := range action.GetParams() {
		name := fmt.Sprintf("param#%d", param.GetParamId())
		for _, p := range p4action.GetParams() {
			if p.GetId() == param.GetParamId() {
				name = p.GetName()
				break
			}
		}
		entry.Data = append(entry.Data, fmt.Sprintf("%s=%s", name, hexBytes(param.GetValue())))
	}

	return entry
}
