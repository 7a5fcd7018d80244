// Package header generates the optional companion C header of uniform
// offsets: it only ever reads a container.Program that the assembler has
// already built, never mutates it.
package header

import (
	"fmt"
	"strings"

	"github.com/go-maestro/vshasm/internal/container"
)

// Generate writes `#pragma once` plus one pair of `#define`s per exported
// (non-underscore-prefixed) uniform declared across p's modules, walking
// names in the order given — callers pass the global uniform table's
// declaration order, which must be preserved.
func Generate(p *container.Program, names []string, kindOf func(string) (class string, pos, size int, ok bool)) string {
	var b strings.Builder
	b.WriteString("#pragma once\n\n")

	prefix := "VSH"
	if len(p.Modules) > 0 && p.Modules[0].IsGeoShader {
		prefix = "GSH"
	}

	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			continue
		}
		class, pos, size, ok := kindOf(name)
		if !ok {
			continue
		}
		if class == "FLAG" {
			if size == 1 {
				fmt.Fprintf(&b, "#define %s_FLAG_%s BIT(%d)\n", prefix, name, pos)
			} else {
				fmt.Fprintf(&b, "#define %s_FLAG_%s(_n) BIT(%d+(_n))\n", prefix, name, pos)
			}
		} else {
			fmt.Fprintf(&b, "#define %s_%s_%s 0x%02X\n", prefix, class, name, pos)
		}
		fmt.Fprintf(&b, "#define %s_ULEN_%s %d\n", prefix, name, size)
	}
	return b.String()
}
