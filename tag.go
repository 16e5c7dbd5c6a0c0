package flowsdr

// TagKind discriminates the closed Tag tagged union (spec.md §3).
type TagKind string

const (
	TagKindNull   TagKind = "null"
	TagKindUInt   TagKind = "uint"
	TagKindF32    TagKind = "f32"
	TagKindF64    TagKind = "f64"
	TagKindString TagKind = "string"
	TagKindAny    TagKind = "any"
)

// Tag is sample-indexed metadata a writer attaches to a stream buffer at an
// item offset; readers observe it once their slice covers that index. The
// Index field is set by the input port, not by the caller: SliceWithTags
// returns it relative to the start of the reader's current slice.
type Tag struct {
	Index uint64
	Name  string
	Kind  TagKind
	u     uint64
	f32   float32
	f64   float64
	s     string
	any   any
}

func TagNull(name string) Tag            { return Tag{Name: name, Kind: TagKindNull} }
func TagU64(name string, v uint64) Tag   { return Tag{Name: name, Kind: TagKindUInt, u: v} }
func TagF32(name string, v float32) Tag  { return Tag{Name: name, Kind: TagKindF32, f32: v} }
func TagF64(name string, v float64) Tag  { return Tag{Name: name, Kind: TagKindF64, f64: v} }
func TagString(name, v string) Tag       { return Tag{Name: name, Kind: TagKindString, s: v} }
func TagAny(name string, v any) Tag      { return Tag{Name: name, Kind: TagKindAny, any: v} }

func (t Tag) UInt() (uint64, bool)  { return t.u, t.Kind == TagKindUInt }
func (t Tag) F32() (float32, bool)  { return t.f32, t.Kind == TagKindF32 }
func (t Tag) F64() (float64, bool)  { return t.f64, t.Kind == TagKindF64 }
func (t Tag) String() (string, bool) { return t.s, t.Kind == TagKindString }
func (t Tag) Any() (any, bool)      { return t.any, t.Kind == TagKindAny }

// withIndex returns a copy of t with Index set to idx, used when an input
// port rebases a tag's absolute position to an offset within its slice.
func (t Tag) withIndex(idx uint64) Tag {
	t.Index = idx
	return t
}
