package calendar

import "milkman/internal/core"

// Cell is one rendered grid slot.
type Cell struct {
	Day       int
	Key       core.DateKey
	Blank     bool
	Category1 float64
	Category2 float64
	Status    core.DayStatus
	Selected  bool
	Today     bool
}

// DayPanel describes the selected day.
type DayPanel struct {
	Key       core.DateKey
	Category1 float64
	Category2 float64
	Status    core.DayStatus
}

// Snapshot is an immutable copy of the view for rendering.
type Snapshot struct {
	Phase        Phase
	Month        core.Month
	MonthLabel   string
	Cells        []Cell
	Selected     *DayPanel
	SettingsOpen bool
	BillOpen     bool
	Settings     core.Settings
	Draft        core.Settings
	SaveStatus   SaveStatus
	SaveError    string
	Bill         core.Bill
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	today := core.NewDateKey(v.now().Date())
	snap := Snapshot{
		Phase:        v.phase,
		Month:        v.month,
		MonthLabel:   v.month.Label(),
		SettingsOpen: v.settingsOpen,
		BillOpen:     v.billOpen,
		Settings:     v.settings,
		Draft:        v.draft,
		SaveStatus:   v.saveStatus,
		SaveError:    v.saveErr,
	}
	if v.phase != PhaseViewing {
		return snap
	}

	grid := v.month.Grid()
	snap.Cells = make([]Cell, len(grid))
	overrides := make([]core.Override, 0, len(v.overrides))
	for i, g := range grid {
		if g.Blank() {
			snap.Cells[i] = Cell{Blank: true}
			continue
		}
		var op *core.Override
		if o, ok := v.overrides[g.Key]; ok {
			op = &o
			overrides = append(overrides, o)
		}
		snap.Cells[i] = Cell{
			Day:       g.Day,
			Key:       g.Key,
			Category1: core.EffectiveAmount(v.settings, op, core.Category1),
			Category2: core.EffectiveAmount(v.settings, op, core.Category2),
			Status:    core.ClassifyDay(v.settings, op),
			Selected:  g.Key == v.selected,
			Today:     g.Key == today,
		}
		if snap.Cells[i].Selected {
			snap.Selected = &DayPanel{
				Key:       g.Key,
				Category1: snap.Cells[i].Category1,
				Category2: snap.Cells[i].Category2,
				Status:    snap.Cells[i].Status,
			}
		}
	}
	snap.Bill = core.ComputeBill(v.month, v.settings, overrides)
	return snap
}
