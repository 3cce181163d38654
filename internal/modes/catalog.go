package modes

// Workflow is one selectable entry of the static workflow catalog.
type Workflow struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
}

// Catalog is an ordered list of workflows.
type Catalog []Workflow

// Workflows is the built-in catalog offered to tasker submissions.
var Workflows = Catalog{
	{Key: "software_qa", Label: "Software QA"},
	{Key: "cvs_appointment", Label: "CVS Appointment"},
}

// Lookup returns the workflow registered under key.
func (c Catalog) Lookup(key string) (Workflow, bool) {
	for _, w := range c {
		if w.Key == key {
			return w, true
		}
	}
	return Workflow{}, false
}

// Keys returns the workflow keys in catalog order.
func (c Catalog) Keys() []string {
	keys := make([]string, len(c))
	for i, w := range c {
		keys[i] = w.Key
	}
	return keys
}
