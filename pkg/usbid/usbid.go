package usbid

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ardnew/usbhost/pkg"
)

// DefaultPaths lists the standard locations for the USB ID database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

//go:embed builtin.ids
var builtin string

// Database caches vendor, product and interface class names.
type Database struct {
	mu       sync.RWMutex
	paths    []string
	loaded   bool
	source   string
	vendors  map[uint16]string // VID
	products map[uint32]string // VID<<16 | PID
	classes  map[uint32]string // class<<16 | subclass<<8 | protocol, see classKey
}

// New returns a database that searches DefaultPaths.
func New() *Database {
	return NewWithPaths(DefaultPaths)
}

// NewWithPaths returns a database that searches paths in order.
func NewWithPaths(paths []string) *Database {
	return &Database{
		paths:    paths,
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
		classes:  make(map[uint32]string),
	}
}

// Load parses the first database found on the search path, or the built-in
// table if there is none. It is idempotent and reports whether an installed
// database was found.
func (db *Database) Load() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.loaded {
		return db.source != "builtin"
	}
	db.loaded = true

	for _, path := range db.paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		err = db.parse(f)
		f.Close()
		if err != nil {
			pkg.LogWarn(pkg.ComponentHost, "usb.ids parse failed", "path", path, "error", err)
			continue
		}
		db.source = path
		return true
	}

	// The embedded table is well-formed.
	_ = db.parse(strings.NewReader(builtin))
	db.source = "builtin"
	return false
}

// Parse adds the entries of a usb.ids formatted stream.
func (db *Database) Parse(r io.Reader) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.parse(r)
}

// Source returns the path the database was loaded from, "builtin", or ""
// before Load.
func (db *Database) Source() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.source
}

// section is the usb.ids block the scanner is in.
type section uint8

const (
	sectionNone section = iota
	sectionVendor
	sectionClass
	sectionOther
)

func (db *Database) parse(r io.Reader) error {
	var (
		sec      = sectionNone
		vid      uint16
		class    uint8
		subclass uint8
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		depth := 0
		for depth < len(line) && line[depth] == '\t' {
			depth++
		}
		line = line[depth:]

		if depth == 0 {
			switch {
			case strings.HasPrefix(line, "C "):
				id, name, ok := splitEntry(line[2:], 2)
				if !ok {
					sec = sectionOther
					continue
				}
				sec, class = sectionClass, uint8(id)
				db.classes[classKey(class, 0, 0, 1)] = name
			default:
				id, name, ok := splitEntry(line, 4)
				if !ok {
					// AT, HID, R, BIAS and the other tables.
					sec = sectionOther
					continue
				}
				sec, vid = sectionVendor, uint16(id)
				db.vendors[vid] = name
			}
			continue
		}

		switch sec {
		case sectionVendor:
			if depth != 1 {
				continue // Interface lines.
			}
			if pid, name, ok := splitEntry(line, 4); ok {
				db.products[uint32(vid)<<16|uint32(pid)] = name
			}
		case sectionClass:
			id, name, ok := splitEntry(line, 2)
			if !ok {
				continue
			}
			if depth == 1 {
				subclass = uint8(id)
				db.classes[classKey(class, subclass, 0, 2)] = name
			} else {
				db.classes[classKey(class, subclass, uint8(id), 3)] = name
			}
		}
	}
	return scanner.Err()
}

// splitEntry splits "xxxx  Name" with an id of width hex digits.
func splitEntry(line string, width int) (uint64, string, bool) {
	if len(line) < width+2 || line[width] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:width], 16, width*4)
	if err != nil {
		return 0, "", false
	}
	return id, strings.TrimLeft(line[width:], " "), true
}

// classKey packs a class triple; level is the number of significant fields.
func classKey(class, subclass, protocol uint8, level int) uint32 {
	return uint32(level)<<24 | uint32(class)<<16 | uint32(subclass)<<8 | uint32(protocol)
}

// Vendor returns the name of vid, or "".
func (db *Database) Vendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// Product returns the name of vid:pid, or "".
func (db *Database) Product(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Class returns the most specific name known for an interface class
// triple, or "".
func (db *Database) Class(class, subclass, protocol uint8) string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if name, ok := db.classes[classKey(class, subclass, protocol, 3)]; ok {
		return name
	}
	if name, ok := db.classes[classKey(class, subclass, 0, 2)]; ok {
		return name
	}
	return db.classes[classKey(class, 0, 0, 1)]
}

// Describe formats vid:pid with whatever names are known.
func (db *Database) Describe(vid, pid uint16) string {
	s := fmt.Sprintf("%04x:%04x", vid, pid)
	v, p := db.Vendor(vid), db.Product(vid, pid)
	switch {
	case v != "" && p != "":
		return s + " " + v + " " + p
	case v != "":
		return s + " " + v
	default:
		return s
	}
}

// Len returns the number of vendors and products known.
func (db *Database) Len() (vendors, products int) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors), len(db.products)
}
