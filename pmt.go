package flowsdr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PmtKind discriminates the closed Pmt tagged union (spec.md §3).
type PmtKind string

const (
	PmtKindNull         PmtKind = "null"
	PmtKindBool         PmtKind = "bool"
	PmtKindInt          PmtKind = "int"
	PmtKindUInt         PmtKind = "uint"
	PmtKindF32          PmtKind = "f32"
	PmtKindF64          PmtKind = "f64"
	PmtKindString       PmtKind = "string"
	PmtKindBlob         PmtKind = "blob"
	PmtKindVecF32       PmtKind = "vec_f32"
	PmtKindVecU64       PmtKind = "vec_u64"
	PmtKindMap          PmtKind = "map"
	PmtKindList         PmtKind = "list"
	PmtKindOk           PmtKind = "ok"
	PmtKindInvalidValue PmtKind = "invalid_value"
)

// Pmt is the polymorphic message-port value type: a closed tagged union
// over the variants spec.md §3 enumerates. The zero value has an empty
// Kind: IsNull reports false for it and it does not Equal PmtNull().
// Decoding JSON with an empty kind yields PmtNull().
type Pmt struct {
	kind PmtKind
	b    bool
	i    int64
	u    uint64
	f32  float32
	f64  float64
	s    string
	blob []byte
	vf32 []float32
	vu64 []uint64
	m    map[string]Pmt
	list []Pmt
}

func PmtNull() Pmt                  { return Pmt{kind: PmtKindNull} }
func PmtOk() Pmt                    { return Pmt{kind: PmtKindOk} }
func PmtInvalidValue() Pmt          { return Pmt{kind: PmtKindInvalidValue} }
func PmtBool(v bool) Pmt            { return Pmt{kind: PmtKindBool, b: v} }
func PmtInt(v int64) Pmt            { return Pmt{kind: PmtKindInt, i: v} }
func PmtUInt(v uint64) Pmt          { return Pmt{kind: PmtKindUInt, u: v} }
func PmtF32(v float32) Pmt          { return Pmt{kind: PmtKindF32, f32: v} }
func PmtF64(v float64) Pmt          { return Pmt{kind: PmtKindF64, f64: v} }
func PmtString(v string) Pmt        { return Pmt{kind: PmtKindString, s: v} }
func PmtBlob(v []byte) Pmt          { return Pmt{kind: PmtKindBlob, blob: v} }
func PmtVecF32(v []float32) Pmt     { return Pmt{kind: PmtKindVecF32, vf32: v} }
func PmtVecU64(v []uint64) Pmt      { return Pmt{kind: PmtKindVecU64, vu64: v} }
func PmtMap(v map[string]Pmt) Pmt   { return Pmt{kind: PmtKindMap, m: v} }
func PmtList(v []Pmt) Pmt           { return Pmt{kind: PmtKindList, list: v} }

func (p Pmt) Kind() PmtKind { return p.kind }
func (p Pmt) IsNull() bool  { return p.kind == PmtKindNull }

func (p Pmt) Bool() (bool, bool)             { return p.b, p.kind == PmtKindBool }
func (p Pmt) Int() (int64, bool)             { return p.i, p.kind == PmtKindInt }
func (p Pmt) UInt() (uint64, bool)           { return p.u, p.kind == PmtKindUInt }
func (p Pmt) F32() (float32, bool)           { return p.f32, p.kind == PmtKindF32 }
func (p Pmt) F64() (float64, bool)           { return p.f64, p.kind == PmtKindF64 }
func (p Pmt) String() (string, bool)         { return p.s, p.kind == PmtKindString }
func (p Pmt) Blob() ([]byte, bool)           { return p.blob, p.kind == PmtKindBlob }
func (p Pmt) VecF32() ([]float32, bool)      { return p.vf32, p.kind == PmtKindVecF32 }
func (p Pmt) VecU64() ([]uint64, bool)       { return p.vu64, p.kind == PmtKindVecU64 }
func (p Pmt) Map() (map[string]Pmt, bool)    { return p.m, p.kind == PmtKindMap }
func (p Pmt) List() ([]Pmt, bool)            { return p.list, p.kind == PmtKindList }

// Equal reports deep equality across all variants, used by the round-trip
// law tests (serialize/deserialize yields an equal value).
func (p Pmt) Equal(other Pmt) bool {
	if p.kind != other.kind {
		return false
	}
	switch p.kind {
	case PmtKindBool:
		return p.b == other.b
	case PmtKindInt:
		return p.i == other.i
	case PmtKindUInt:
		return p.u == other.u
	case PmtKindF32:
		return p.f32 == other.f32
	case PmtKindF64:
		return p.f64 == other.f64
	case PmtKindString:
		return p.s == other.s
	case PmtKindBlob:
		return string(p.blob) == string(other.blob)
	case PmtKindVecF32:
		if len(p.vf32) != len(other.vf32) {
			return false
		}
		for i := range p.vf32 {
			if p.vf32[i] != other.vf32[i] {
				return false
			}
		}
		return true
	case PmtKindVecU64:
		if len(p.vu64) != len(other.vu64) {
			return false
		}
		for i := range p.vu64 {
			if p.vu64[i] != other.vu64[i] {
				return false
			}
		}
		return true
	case PmtKindMap:
		if len(p.m) != len(other.m) {
			return false
		}
		for k, v := range p.m {
			ov, ok := other.m[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	case PmtKindList:
		if len(p.list) != len(other.list) {
			return false
		}
		for i := range p.list {
			if !p.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	default:
		return true // Null, Ok, InvalidValue carry no payload
	}
}

// pmtWire is the discriminated-shape JSON encoding from spec.md §6: an
// object keyed on variant name.
type pmtWire struct {
	Kind  PmtKind          `json:"kind"`
	Bool  *bool            `json:"bool,omitempty"`
	Int   *int64           `json:"int,omitempty"`
	UInt  *uint64          `json:"uint,omitempty"`
	F32   *float32         `json:"f32,omitempty"`
	F64   *float64         `json:"f64,omitempty"`
	Str   *string          `json:"string,omitempty"`
	Blob  string           `json:"blob,omitempty"` // base64
	VF32  []float32        `json:"vec_f32,omitempty"`
	VU64  []uint64         `json:"vec_u64,omitempty"`
	Map   map[string]Pmt   `json:"map,omitempty"`
	List  []Pmt            `json:"list,omitempty"`
}

func (p Pmt) MarshalJSON() ([]byte, error) {
	w := pmtWire{Kind: p.kind}
	switch p.kind {
	case PmtKindBool:
		w.Bool = &p.b
	case PmtKindInt:
		w.Int = &p.i
	case PmtKindUInt:
		w.UInt = &p.u
	case PmtKindF32:
		w.F32 = &p.f32
	case PmtKindF64:
		w.F64 = &p.f64
	case PmtKindString:
		w.Str = &p.s
	case PmtKindBlob:
		w.Blob = base64.StdEncoding.EncodeToString(p.blob)
	case PmtKindVecF32:
		w.VF32 = p.vf32
	case PmtKindVecU64:
		w.VU64 = p.vu64
	case PmtKindMap:
		w.Map = p.m
	case PmtKindList:
		w.List = p.list
	}
	return json.Marshal(w)
}

func (p *Pmt) UnmarshalJSON(data []byte) error {
	var w pmtWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "", PmtKindNull:
		*p = PmtNull()
	case PmtKindOk:
		*p = PmtOk()
	case PmtKindInvalidValue:
		*p = PmtInvalidValue()
	case PmtKindBool:
		if w.Bool == nil {
			return fmt.Errorf("flowsdr: pmt bool missing value")
		}
		*p = PmtBool(*w.Bool)
	case PmtKindInt:
		if w.Int == nil {
			return fmt.Errorf("flowsdr: pmt int missing value")
		}
		*p = PmtInt(*w.Int)
	case PmtKindUInt:
		if w.UInt == nil {
			return fmt.Errorf("flowsdr: pmt uint missing value")
		}
		*p = PmtUInt(*w.UInt)
	case PmtKindF32:
		if w.F32 == nil {
			return fmt.Errorf("flowsdr: pmt f32 missing value")
		}
		*p = PmtF32(*w.F32)
	case PmtKindF64:
		if w.F64 == nil {
			return fmt.Errorf("flowsdr: pmt f64 missing value")
		}
		*p = PmtF64(*w.F64)
	case PmtKindString:
		if w.Str == nil {
			return fmt.Errorf("flowsdr: pmt string missing value")
		}
		*p = PmtString(*w.Str)
	case PmtKindBlob:
		raw, err := base64.StdEncoding.DecodeString(w.Blob)
		if err != nil {
			return err
		}
		*p = PmtBlob(raw)
	case PmtKindVecF32:
		*p = PmtVecF32(w.VF32)
	case PmtKindVecU64:
		*p = PmtVecU64(w.VU64)
	case PmtKindMap:
		*p = PmtMap(w.Map)
	case PmtKindList:
		*p = PmtList(w.List)
	default:
		return fmt.Errorf("flowsdr: unknown pmt kind %q", w.Kind)
	}
	return nil
}
