package cpcl

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Framing shared by every label the printer accepts
const (
	Start = "! 0 200 200 150 1"
	End   = "\nFORM\nPRINT\n"

	fieldSeparator = " \n"
)

// ErrUnencodable is returned when a document holds characters outside ISO-8859-1.
var ErrUnencodable = errors.New("document is not representable in ISO-8859-1")

// Field is a single CPCL command line (or block) inside a label.
type Field interface {
	Render() string
}

// TextField prints one line of text with a resident font.
// Content is not escaped: it must not contain line breaks.
type TextField struct {
	Font    int
	Size    int
	X       int
	Y       int
	Content string
}

func (f TextField) Render() string {
	return fmt.Sprintf("TEXT %d %d %d %d %s", f.Font, f.Size, f.X, f.Y, f.Content)
}

// MultiLineTextField prints a block of text with a fixed line height.
type MultiLineTextField struct {
	LineHeight int
	Font       int
	Size       int
	X          int
	Y          int
	Content    string
}

// Render emits the block closed by two ENDML lines, which the firmware
// has always been sent.
func (f MultiLineTextField) Render() string {
	return fmt.Sprintf("ML %d\nTEXT %d %d %d %d \n%s\nENDML\nENDML",
		f.LineHeight, f.Font, f.Size, f.X, f.Y, f.Content)
}

// Barcode prints a Code 128 barcode.
type Barcode struct {
	Width   int
	Ratio   int
	Height  int
	X       int
	Y       int
	Content string
}

func (b Barcode) Render() string {
	return fmt.Sprintf("BARCODE 128 %d %d %d %d %d %s", b.Width, b.Ratio, b.Height, b.X, b.Y, b.Content)
}

// Label is an ordered, immutable list of fields.
type Label struct {
	fields []Field
}

// NewLabel copies fields into a new Label
func NewLabel(fields ...Field) Label {
	return Label{fields: append([]Field(nil), fields...)}
}

// Fields returns a copy of the label's fields in print order
func (l Label) Fields() []Field {
	return append([]Field(nil), l.fields...)
}

// Command builds a CPCL document field by field
type Command struct {
	buf strings.Builder
}

func New() *Command {
	c := &Command{}
	c.buf.WriteString(Start)
	return c
}

// Field appends any rendered field
func (c *Command) Field(f Field) *Command {
	c.buf.WriteString(fieldSeparator)
	c.buf.WriteString(f.Render())
	return c
}

// Text appends a TEXT command
func (c *Command) Text(font, size, x, y int, content string) *Command {
	return c.Field(TextField{Font: font, Size: size, X: x, Y: y, Content: content})
}

// MultiLineText appends an ML block
func (c *Command) MultiLineText(lineHeight, font, size, x, y int, content string) *Command {
	return c.Field(MultiLineTextField{LineHeight: lineHeight, Font: font, Size: size, X: x, Y: y, Content: content})
}

// Barcode appends a BARCODE 128 command
func (c *Command) Barcode(width, ratio, height, x, y int, content string) *Command {
	return c.Field(Barcode{Width: width, Ratio: ratio, Height: height, X: x, Y: y, Content: content})
}

// Print terminates the document with FORM/PRINT and returns it
func (c *Command) Print() Document {
	return Document(c.buf.String() + End)
}

// Render builds the complete document for a label
func Render(l Label) Document {
	cmd := New()
	for _, f := range l.fields {
		cmd.Field(f)
	}
	return cmd.Print()
}

// Document is a fully framed CPCL payload
type Document string

// Bytes returns the document encoded one byte per character
func (d Document) Bytes() ([]byte, error) {
	out, err := charmap.ISO8859_1.NewEncoder().String(string(d))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodable, err)
	}
	return []byte(out), nil
}

// String returns the document text (for debugging)
func (d Document) String() string {
	return string(d)
}
