// Package palette assigns stable colors to calendars that carry none of their own.
package palette

// Palette is an ordered list of hex colors cycled by position.
type Palette []string

// Default is used when configuration does not supply a palette.
var Default = Palette{
	"#4285f4",
	"#0b8043",
	"#d50000",
	"#f4511e",
	"#8e24aa",
	"#33b679",
	"#e67c73",
	"#f6bf26",
	"#039be5",
	"#616161",
	"#3f51b5",
	"#7986cb",
}

// Assign returns the color for list position i. Negative positions wrap too.
func (p Palette) Assign(i int) string {
	if len(p) == 0 {
		return Default.Assign(i)
	}
	n := len(p)
	return p[((i%n)+n)%n]
}
