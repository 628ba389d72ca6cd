package entities

// Machine is a piece of manufacturing equipment. Area is its shared surface in cm².
type Machine struct {
	ID            int     `json:"id" yaml:"id"`
	Name          string  `json:"name" yaml:"name"`
	MachineNumber string  `json:"machineNumber" yaml:"machineNumber"`
	Stage         string  `json:"stage" yaml:"stage"`
	Area          float64 `json:"area" yaml:"area"`
	Line          string  `json:"line" yaml:"line"`
}

// DetergentIngredient is a cleaning agent component. It is persisted for the UI
// but does not take part in train or MACO calculations.
type DetergentIngredient struct {
	ID      int      `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	LD50    *float64 `json:"ld50,omitempty" yaml:"ld50,omitempty"`
	Comment string   `json:"comment,omitempty" yaml:"comment,omitempty"`
}
