package db

// Page is a validated pagination window. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// NewPage applies defaults and the size ceiling. Zero values default to the
// first page and maxSize; negative values are clamped the same way.
func NewPage(number, size, maxSize int) Page {
	if maxSize <= 0 {
		maxSize = 50
	}
	if number <= 0 {
		number = 1
	}
	if size <= 0 || size > maxSize {
		size = maxSize
	}
	return Page{Number: number, Size: size}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}
