package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	magicDVLB = 0x424C5644 // "DVLB" read as an LE word
	magicDVLP = 0x504C5644 // "DVLP"
	magicDVLE = 0x454C5644 // "DVLE"
	dvleVer   = 0x1002
)

// dvlpHeaderSize is the fixed 40-byte DVLP header: magic, version,
// codeOff, codeSize, opdescOff, opdescCount, symOff, three reserved
// words.
const dvlpHeaderSize = 40

// dvleHeaderSize is the fixed DVLE header preceding its variable-length
// tables.
const dvleHeaderSize = 64

const constantEntrySize = 4 + 16 // half-word type/regid header + fixed 16-byte payload
const outputEntrySize = 8        // one 64-bit word
const uniformEntrySize = 8       // symbol offset word + pos_lo/pos_hi half-words

func le32(buf *bytes.Buffer, v uint32) { binary.Write(buf, binary.LittleEndian, v) }
func le16(buf *bytes.Buffer, v uint16) { binary.Write(buf, binary.LittleEndian, v) }

// Write serializes p as a complete SHBIN: a DVLB header, one DVLP section,
// and one DVLE section per non-suppressed module. Output is
// byte-identical across runs for identical input, because every
// collection here is already in a deterministic order before Write is
// called.
func Write(p *Program) ([]byte, error) {
	var emitted []*Module
	for _, m := range p.Modules {
		if !m.NoDVLE {
			emitted = append(emitted, m)
		}
	}

	dvlp, err := buildDVLP(p)
	if err != nil {
		return nil, err
	}

	dvleSections := make([][]byte, len(emitted))
	for i, m := range emitted {
		sec, err := buildDVLE(m)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.Filename, err)
		}
		dvleSections[i] = sec
	}

	var out bytes.Buffer
	le32(&out, magicDVLB)
	le32(&out, uint32(len(emitted)))

	headerSize := 8 + 4*len(emitted)
	offset := headerSize + len(dvlp)
	offsets := make([]uint32, len(emitted))
	for i, sec := range dvleSections {
		offsets[i] = uint32(offset)
		offset += len(sec)
	}
	for _, off := range offsets {
		le32(&out, off)
	}

	out.Write(dvlp)
	for _, sec := range dvleSections {
		out.Write(sec)
	}
	return out.Bytes(), nil
}

func buildDVLP(p *Program) ([]byte, error) {
	var out bytes.Buffer

	codeOff := uint32(dvlpHeaderSize)
	codeSize := uint32(len(p.Code))
	opdescOff := codeOff + codeSize*4
	opdescCount := uint32(len(p.OpDescs))
	symOff := opdescOff + opdescCount*8

	le32(&out, magicDVLP)
	le32(&out, 0) // version
	le32(&out, codeOff)
	le32(&out, codeSize)
	le32(&out, opdescOff)
	le32(&out, opdescCount)
	le32(&out, symOff) // empty symtable
	le32(&out, 0)
	le32(&out, 0)
	le32(&out, 0)

	for _, w := range p.Code {
		le32(&out, w)
	}
	for _, v := range p.OpDescs {
		le32(&out, v)  // value
		le32(&out, 0)  // flags, always zero
	}

	return out.Bytes(), nil
}

func buildDVLE(m *Module) ([]byte, error) {
	var symbols bytes.Buffer
	symOffset := map[string]uint32{}

	internSymbol := func(name string) uint32 {
		name = strings.ReplaceAll(name, "$", ".")
		if off, ok := symOffset[name]; ok {
			return off
		}
		off := uint32(symbols.Len())
		symOffset[name] = off
		symbols.WriteString(name)
		symbols.WriteByte(0)
		return off
	}

	var constants, outputs, uniforms bytes.Buffer

	for _, c := range m.Constants {
		writeConstant(&constants, c)
	}

	for _, o := range m.Outputs {
		writeOutput(&outputs, o)
	}

	sorted := append([]Uniform(nil), m.Uniforms...)
	sortUniformsByPosition(sorted)
	for _, u := range sorted {
		off := internSymbol(u.Name)
		pos := u.Position
		if !u.IsFVec {
			pos -= 0x10 // non-FVEC positions are written 0x10 below their flat index
		}
		size := u.Size
		if size < 1 {
			size = 1
		}
		le32(&uniforms, off)
		le16(&uniforms, uint16(pos))
		le16(&uniforms, uint16(pos+size-1))
	}

	// symbol blob padded to a 4-byte boundary.
	for symbols.Len()%4 != 0 {
		symbols.WriteByte(0)
	}

	constOff := uint32(dvleHeaderSize)
	outOff := constOff + uint32(constants.Len())
	uniOff := outOff + uint32(outputs.Len())
	symOff := uniOff + uint32(uniforms.Len())

	var out bytes.Buffer
	le32(&out, magicDVLE)
	le16(&out, dvleVer)
	shaderType := byte(0)
	if m.IsGeoShader {
		shaderType = 1
	}
	out.WriteByte(shaderType)
	mergeFlag := byte(0)
	if m.IsMerge {
		mergeFlag = 1
	}
	out.WriteByte(mergeFlag)
	le32(&out, uint32(m.EntryStart))
	le32(&out, uint32(m.EntryEnd))
	le16(&out, m.InputMask)
	le16(&out, m.OutputMask)
	out.WriteByte(byte(m.GeoType))
	out.WriteByte(m.GeoFixedStart)
	out.WriteByte(m.GeoVariableNum)
	out.WriteByte(m.GeoFixedNum)
	le32(&out, constOff)
	le32(&out, uint32(len(m.Constants)))
	le32(&out, 0) // label table offset: always an empty table, layout unused
	le32(&out, 0)
	le32(&out, outOff)
	le32(&out, uint32(len(m.Outputs)))
	le32(&out, uniOff)
	le32(&out, uint32(len(sorted)))
	le32(&out, symOff)
	le32(&out, uint32(symbols.Len()))

	if out.Len() != dvleHeaderSize {
		return nil, fmt.Errorf("internal: DVLE header size drifted to %d", out.Len())
	}

	out.Write(constants.Bytes())
	out.Write(outputs.Bytes())
	out.Write(uniforms.Bytes())
	out.Write(symbols.Bytes())

	for out.Len()%4 != 0 {
		out.WriteByte(0)
	}
	return out.Bytes(), nil
}

func writeConstant(buf *bytes.Buffer, c Constant) {
	le16(buf, uint16(c.Kind))
	le16(buf, uint16(c.RegID))
	payload := make([]byte, 16)
	switch c.Kind {
	case ConstFVec:
		for i, f := range c.FVec {
			binary.LittleEndian.PutUint32(payload[i*4:], EncodeF24(f))
		}
	case ConstIVec:
		copy(payload, c.IVec[:])
	case ConstBool:
		if c.BoolVal {
			payload[0] = 1
		}
	}
	buf.Write(payload)
}

func writeOutput(buf *bytes.Buffer, o Output) {
	low := uint32(o.Type) | uint32(o.Reg)<<16
	high := uint32(o.Mask)
	le32(buf, low)
	le32(buf, high)
}

func sortUniformsByPosition(u []Uniform) {
	for i := 1; i < len(u); i++ {
		for j := i; j > 0 && u[j].Position < u[j-1].Position; j-- {
			u[j], u[j-1] = u[j-1], u[j]
		}
	}
}
