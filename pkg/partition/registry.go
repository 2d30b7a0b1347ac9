// Package partition holds the static classification table for firmware
// partitions: canonical names, on-disk formats, and legacy alias names.
// It is pure configuration data with no I/O; callers filter out unknown
// names themselves.
package partition

// Format classifies how a partition image is extracted.
type Format int

const (
	// Filesystem images are handed to the filesystem-image extractor.
	Filesystem Format = iota
	// BootImage images get the boot-image unpacker plus a raw copy.
	BootImage
	// Raw images are copied verbatim, no extraction.
	Raw
)

// String returns the lowercase format name used in logs and the run database.
func (f Format) String() string {
	switch f {
	case Filesystem:
		return "filesystem"
	case BootImage:
		return "bootimage"
	case Raw:
		return "raw"
	default:
		return "unknown"
	}
}

// Spec declares one canonical partition.
type Spec struct {
	Name   string
	Format Format
}

// Alias maps an alternative on-disk name to a canonical partition name.
type Alias struct {
	Alternative string
	Canonical   string
}

// specs is the curated partition table. Declaration order is the iteration
// order for extraction, so output stays reproducible across runs; do not
// reorder without a reason.
var specs = []Spec{
	// Bootloader/raw images
	{"boot", BootImage},
	{"dtbo", Raw},
	{"recovery", BootImage},
	{"vendor_boot", BootImage},
	{"exaid", BootImage},
	{"rescue", BootImage},
	{"tz", Raw},

	// Partitions with a standard filesystem
	{"odm", Filesystem},
	{"odm_dlkm", Filesystem},
	{"oem", Filesystem},
	{"product", Filesystem},
	{"system", Filesystem},
	{"system_dlkm", Filesystem},
	{"system_ext", Filesystem},
	{"system_other", Filesystem},
	{"vendor", Filesystem},
	{"vendor_dlkm", Filesystem},

	// SoC vendor/OEM/ODM specials
	{"cust", Filesystem},
	{"factory", Filesystem},
	{"india", Filesystem},
	{"modem", Filesystem},
	{"my_bigball", Filesystem},
	{"my_carrier", Filesystem},
	{"my_company", Filesystem},
	{"my_country", Filesystem},
	{"my_custom", Filesystem},
	{"my_engineering", Filesystem},
	{"my_heytap", Filesystem},
	{"my_manifest", Filesystem},
	{"my_odm", Filesystem},
	{"my_operator", Filesystem},
	{"my_preload", Filesystem},
	{"my_product", Filesystem},
	{"my_region", Filesystem},
	{"my_stock", Filesystem},
	{"my_version", Filesystem},
	{"odm_ext", Filesystem},
	{"oppo_product", Filesystem},
	{"opproduct", Filesystem},
	{"preload_common", Filesystem},
	{"reserve", Filesystem},
	{"special_preload", Filesystem},
	{"systemex", Filesystem},
	{"xrom", Filesystem},
}

// aliases maps legacy/vendor image names to canonical partitions.
var aliases = []Alias{
	{"boot-verified", "boot"},
	{"dtbo-verified", "dtbo"},
	{"NON-HLOS", "modem"},
}

var (
	formatByName   map[string]Format
	canonicalByAlt map[string]string
	knownTokens    map[string]struct{}
)

func init() {
	formatByName = make(map[string]Format, len(specs))
	for _, s := range specs {
		formatByName[s.Name] = s.Format
	}

	canonicalByAlt = make(map[string]string, len(aliases))
	for _, a := range aliases {
		canonicalByAlt[a.Alternative] = a.Canonical
	}

	knownTokens = make(map[string]struct{}, len(specs)+len(aliases))
	for _, name := range NamesWithAliases() {
		knownTokens[name] = struct{}{}
	}
}

// FormatOf returns the format of a canonical partition name.
// Alias names are not resolved here; canonicalize first.
func FormatOf(name string) (Format, bool) {
	f, ok := formatByName[name]
	return f, ok
}

// Canonicalize maps an alias to its canonical name. Canonical and unknown
// names pass through unchanged.
func Canonicalize(name string) string {
	if canonical, ok := canonicalByAlt[name]; ok {
		return canonical
	}
	return name
}

// Known reports whether name is a canonical partition or a declared alias.
func Known(name string) bool {
	_, ok := knownTokens[name]
	return ok
}

// Names returns all canonical partition names in declaration order.
func Names() []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}

// NamesWithAliases returns canonical names followed by alias names,
// both in declaration order.
func NamesWithAliases() []string {
	names := Names()
	for _, a := range aliases {
		names = append(names, a.Alternative)
	}
	return names
}

// NamesWithSlotVariants returns, for every canonical name and alias, the
// bare name plus its _a and _b slot variants, in that order. Raw-image
// preparation walks this list so slotted images are picked up even under
// alias names.
func NamesWithSlotVariants() []string {
	base := NamesWithAliases()
	names := make([]string, 0, len(base)*3)
	for _, name := range base {
		names = append(names, name, name+"_a", name+"_b")
	}
	return names
}

// Aliases returns the alias table in declaration order.
func Aliases() []Alias {
	out := make([]Alias, len(aliases))
	copy(out, aliases)
	return out
}
