package cpcl

import "fmt"

// PartLabel describes an inventory part label: a title, a barcode and two
// annotation lines underneath.
type PartLabel struct {
	Name      string
	Barcode   string
	Number    string
	ShortName string
	Location  string
	Min       string
	Max       string
}

// DemoPart is the label printed by the test print action.
var DemoPart = PartLabel{
	Name:      "Test Part 1",
	Barcode:   "4121001245256325233542",
	Number:    "41210",
	ShortName: "TP1",
	Location:  "LOC: thisPlace",
	Min:       "MIN:-6",
	Max:       "MAX: 100",
}

// Label lays the part out on a 2 inch label
func (p PartLabel) Label() Label {
	return NewLabel(
		TextField{Font: 4, Size: 0, X: 30, Y: 0, Content: p.Name},
		Barcode{Width: 2, Ratio: 1, Height: 50, X: 30, Y: 50, Content: p.Barcode},
		TextField{Font: 7, Size: 0, X: 50, Y: 100, Content: fmt.Sprintf("%s     %s", p.Number, p.ShortName)},
		TextField{Font: 7, Size: 0, X: 50, Y: 130, Content: fmt.Sprintf("%s     %s     %s", p.Location, p.Min, p.Max)},
	)
}
